package payslip

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// CanonicalPrefix starts every canonical receipt name.
const CanonicalPrefix = "Recibo Nomina "

// Class groups downloaded artifacts by extension.
type Class int

const (
	ClassOther Class = iota
	ClassXML
	ClassPDF
)

func (c Class) String() string {
	switch c {
	case ClassXML:
		return "xml"
	case ClassPDF:
		return "pdf"
	default:
		return "other"
	}
}

// Classify returns the class of a file name based on its extension.
func Classify(name string) Class {
	switch Extension(name) {
	case "xml":
		return ClassXML
	case "pdf":
		return ClassPDF
	default:
		return ClassOther
	}
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Stem returns name without directory and extension.
func Stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// dayStemRe matches a bare day stem ("14") and the alternates built by
// AlternateName ("14_item3", "14_item3_2").
var dayStemRe = regexp.MustCompile(`^(\d+)(?:_item\d+(?:_\d+)?)?$`)

// IsAmbiguousName reports whether name is an XML or PDF whose stem is only a
// day-of-month number ("14.pdf"), possibly with an alternate suffix. Such
// names collide across months.
func IsAmbiguousName(name string) bool {
	_, ok := DayStem(name)
	return ok
}

// DayStem returns the day-of-month part of an ambiguous XML or PDF name.
func DayStem(name string) (string, bool) {
	if Classify(name) == ClassOther {
		return "", false
	}
	m := dayStemRe.FindStringSubmatch(Stem(name))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// AlternateName keeps a day-named download apart from an earlier file that
// still holds the plain name: "14.xml" from item 3 becomes "14_item3.xml",
// then "14_item3_2.xml" and so on for attempt > 1.
func AlternateName(name string, item, attempt int) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(filepath.Base(name), ext)
	if attempt > 1 {
		return fmt.Sprintf("%s_item%d_%d%s", stem, item, attempt, ext)
	}
	return fmt.Sprintf("%s_item%d%s", stem, item, ext)
}

// CanonicalName builds "Recibo Nomina {year}_{month}_{day}.{ext}".
func CanonicalName(d Date, ext string) string {
	return fmt.Sprintf("%s%s.%s", CanonicalPrefix, d, strings.ToLower(strings.TrimPrefix(ext, ".")))
}

// DateFromCanonicalName parses a name produced by CanonicalName.
func DateFromCanonicalName(name string) (Date, bool) {
	stem := Stem(name)
	if !strings.HasPrefix(stem, CanonicalPrefix) {
		return Date{}, false
	}
	parts := strings.Split(strings.TrimPrefix(stem, CanonicalPrefix), "_")
	if len(parts) != 3 {
		return Date{}, false
	}
	d, err := NewDate(parts[0], parts[1], parts[2])
	if err != nil {
		return Date{}, false
	}
	return d, true
}

// Layout describes where artifacts live under a download root.
type Layout struct {
	Root string
}

const (
	xmlDirName         = "xmls"
	pdfDirName         = "pdfs"
	diagnosticsDirName = "diagnostics"
)

// XMLDir holds XML receipts.
func (l Layout) XMLDir() string { return filepath.Join(l.Root, xmlDirName) }

// PDFDir holds PDF receipts.
func (l Layout) PDFDir() string { return filepath.Join(l.Root, pdfDirName) }

// DiagnosticsDir holds screenshots and page dumps.
func (l Layout) DiagnosticsDir() string { return filepath.Join(l.Root, diagnosticsDirName) }

// Dir returns the directory for artifacts of class c. Anything that is not
// XML or PDF lands in the root.
func (l Layout) Dir(c Class) string {
	switch c {
	case ClassXML:
		return l.XMLDir()
	case ClassPDF:
		return l.PDFDir()
	default:
		return l.Root
	}
}

// PathFor returns the destination of a downloaded file named name.
func (l Layout) PathFor(name string) string {
	return filepath.Join(l.Dir(Classify(name)), filepath.Base(name))
}
