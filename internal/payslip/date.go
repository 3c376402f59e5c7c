package payslip

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NominaNamespace is the namespace of the payroll complement embedded in
// CFDI receipts.
const NominaNamespace = "http://www.sat.gob.mx/nomina12"

const (
	payrollElement  = "Nomina"
	paymentDateAttr = "FechaPago"
	issueDateAttr   = "Fecha"
)

// Date is a calendar date with month and day rendered without leading zeros.
type Date struct {
	Year  string
	Month string
	Day   string
}

// String renders the date as it appears in canonical names: year_month_day.
func (d Date) String() string {
	return fmt.Sprintf("%s_%s_%s", d.Year, d.Month, d.Day)
}

// IsZero reports whether d carries no date.
func (d Date) IsZero() bool {
	return d.Year == "" && d.Month == "" && d.Day == ""
}

// NewDate normalizes raw year, month and day components. Month and day lose
// their leading zeros; the year is kept as written.
func NewDate(year, month, day string) (Date, error) {
	year = strings.TrimSpace(year)
	if year == "" || !isDigits(year) {
		return Date{}, fmt.Errorf("invalid year %q", year)
	}
	m, err := strconv.Atoi(strings.TrimSpace(month))
	if err != nil || m < 1 || m > 12 {
		return Date{}, fmt.Errorf("invalid month %q", month)
	}
	d, err := strconv.Atoi(strings.TrimSpace(day))
	if err != nil || d < 1 || d > 31 {
		return Date{}, fmt.Errorf("invalid day %q", day)
	}
	return Date{Year: year, Month: strconv.Itoa(m), Day: strconv.Itoa(d)}, nil
}

// parseISODate parses "YYYY-MM-DD" optionally followed by a time component
// ("2024-04-23T12:00:00").
func parseISODate(value string) (Date, error) {
	datePart, _, _ := strings.Cut(strings.TrimSpace(value), "T")
	parts := strings.Split(datePart, "-")
	if len(parts) != 3 {
		return Date{}, fmt.Errorf("unrecognized date %q", value)
	}
	return NewDate(parts[0], parts[1], parts[2])
}

// DateFromXML extracts the receipt date from a payroll XML document.
// The payment date of the first nested payroll element wins; the issue date
// on the document root is the fallback.
func DateFromXML(r io.Reader) (Date, error) {
	dec := xml.NewDecoder(r)

	var issueDate string
	root := true
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Date{}, &ParseError{Source: "xml", Message: "malformed document", Cause: err}
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if root {
			root = false
			issueDate = attrValue(start, issueDateAttr)
			continue
		}

		if start.Name.Space == NominaNamespace && start.Name.Local == payrollElement {
			if value := attrValue(start, paymentDateAttr); value != "" {
				if date, err := parseISODate(value); err == nil {
					return date, nil
				}
				break
			}
		}
	}

	if issueDate != "" {
		if date, err := parseISODate(issueDate); err == nil {
			return date, nil
		}
	}
	return Date{}, ErrDateNotFound
}

// DateFromXMLFile opens path and delegates to DateFromXML.
func DateFromXMLFile(path string) (Date, error) {
	f, err := os.Open(path)
	if err != nil {
		return Date{}, &ParseError{Source: filepath.Base(path), Message: "failed to open", Cause: err}
	}
	defer func() { _ = f.Close() }()

	date, err := DateFromXML(f)
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		parseErr.Source = filepath.Base(path)
	}
	return date, err
}

func attrValue(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local && a.Name.Space == "" {
			return a.Value
		}
	}
	return ""
}

// textPattern captures three date components; order tells which group is
// the year, month and day.
type textPattern struct {
	re               *regexp.Regexp
	year, month, day int
}

// Tried in order; the first pattern with a valid date wins.
var textPatterns = []textPattern{
	{re: regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`), year: 1, month: 2, day: 3},
	{re: regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`), year: 3, month: 2, day: 1},
	{re: regexp.MustCompile(`(\d{1,2})-(\d{1,2})-(\d{4})`), year: 3, month: 2, day: 1},
}

// DateFromText scans free text for YYYY-MM-DD, then DD/MM/YYYY, then
// DD-MM-YYYY.
func DateFromText(text string) (Date, error) {
	for _, p := range textPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		date, err := NewDate(m[p.year], m[p.month], m[p.day])
		if err != nil {
			continue
		}
		return date, nil
	}
	return Date{}, ErrDateNotFound
}

// DateFromHTML extracts the visible text of an HTML page and scans it with
// DateFromText.
func DateFromHTML(html string) (Date, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Date{}, &ParseError{Source: "html", Message: "failed to parse HTML", Cause: err}
	}
	doc.Find("script, style, noscript").Remove()
	return DateFromText(doc.Text())
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
