package payslip

import (
	"bytes"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// DateFromPDFFile reads the text drawn on each page of a PDF receipt and
// scans it with DateFromText.
func DateFromPDFFile(path string) (Date, error) {
	f, err := os.Open(path)
	if err != nil {
		return Date{}, &ParseError{Source: filepath.Base(path), Message: "failed to open", Cause: err}
	}
	defer func() { _ = f.Close() }()

	text, err := pdfText(f)
	if err != nil {
		return Date{}, &ParseError{Source: filepath.Base(path), Message: "failed to read PDF", Cause: err}
	}
	return DateFromText(text)
}

func pdfText(rs io.ReadSeeker) (string, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(rs, conf)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
		if err != nil || r == nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(contentStreamText(data))
	}
	return sb.String(), nil
}

// contentStreamText collects the string operands of the text showing
// operators (Tj, TJ, ' and ") in a page content stream. Operators are found
// token by token, so several may share a line. Each operator's text lands
// on its own line.
func contentStreamText(data []byte) string {
	var lines []string
	var operands []string

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case c == '(':
			raw, next := literalString(data, i)
			operands = append(operands, unescapePDFString(raw))
			i = next
		case c == '<' && i+1 < len(data) && data[i+1] == '<',
			c == '>' && i+1 < len(data) && data[i+1] == '>':
			i += 2
		case c == '<':
			text, next := hexString(data, i)
			operands = append(operands, text)
			i = next
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case isPDFSpace(c) || isPDFDelimiter(c):
			i++
		default:
			start := i
			for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelimiter(data[i]) {
				i++
			}
			if !isPDFOperator(data[start:i]) {
				continue
			}
			switch string(data[start:i]) {
			case "Tj", "TJ", "'", "\"":
				if text := strings.Join(operands, ""); text != "" {
					lines = append(lines, text)
				}
			}
			operands = operands[:0]
		}
	}
	return strings.Join(lines, "\n")
}

// literalString returns the raw bytes of the balanced (...) string starting
// at data[start] and the offset just past it.
func literalString(data []byte, start int) ([]byte, int) {
	depth := 0
	for i := start; i < len(data); i++ {
		switch data[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return data[start+1 : i], i + 1
			}
		}
	}
	return data[start+1:], len(data)
}

// hexString decodes the <...> string starting at data[start]. An odd final
// digit is padded with zero.
func hexString(data []byte, start int) (string, int) {
	end := bytes.IndexByte(data[start:], '>')
	if end < 0 {
		return "", len(data)
	}
	var digits []byte
	for _, b := range data[start+1 : start+end] {
		if !isPDFSpace(b) {
			digits = append(digits, b)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	decoded, err := hex.DecodeString(string(digits))
	if err != nil {
		return "", start + end + 1
	}
	return string(decoded), start + end + 1
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0:
		return true
	}
	return false
}

func isPDFDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '%':
		return true
	}
	return false
}

// isPDFOperator tells operators from operands: numbers and /Names are
// operands, everything else is an operator.
func isPDFOperator(tok []byte) bool {
	if len(tok) == 0 {
		return false
	}
	switch c := tok[0]; {
	case c == '/', c == '+', c == '-', c == '.', c >= '0' && c <= '9':
		return false
	}
	return true
}

func unescapePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '0', '1', '2', '3', '4', '5', '6', '7':
			val := int(raw[i] - '0')
			for n := 0; n < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; n++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		default:
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}
