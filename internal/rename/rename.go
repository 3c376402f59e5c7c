// Package rename gives canonical names to receipts that were downloaded
// under their bare day-of-month names ("14.pdf", "23.xml").
package rename

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/jonathan/payslip-crawler/internal/ledger"
	"github.com/jonathan/payslip-crawler/internal/payslip"
	"github.com/jonathan/payslip-crawler/internal/storage"
	"go.uber.org/zap"
)

// ErrRootNotFound is returned when the download root does not exist.
var ErrRootNotFound = errors.New("download root not found")

// Recorder receives every file the pass touches.
type Recorder interface {
	RecordArtifact(ctx context.Context, a ledger.Artifact) error
}

// Report counts what a pass did.
type Report struct {
	Scanned     int
	XMLRenamed  int
	PDFRenamed  int
	Duplicates  int
	Unresolved  int
	Interrupted bool
}

// Renamed returns the number of files moved to a canonical name.
func (r Report) Renamed() int {
	return r.XMLRenamed + r.PDFRenamed
}

// Pass renames the ambiguous files of one download root. XMLs go first
// since PDFs borrow their dates.
type Pass struct {
	layout   payslip.Layout
	files    storage.FileStore
	namer    *payslip.Namer
	recorder Recorder
	logger   *zap.Logger
}

// New creates a Pass over root. recorder may be nil.
func New(root string, files storage.FileStore, recorder Recorder, logger *zap.Logger) *Pass {
	if files == nil {
		files = storage.NewDisk()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pass{
		layout:   payslip.Layout{Root: root},
		files:    files,
		namer:    payslip.NewNamer(files),
		recorder: recorder,
		logger:   logger,
	}
}

// Run performs the pass. Files that cannot be dated keep their names and
// are counted as unresolved. Running it again on the same root changes
// nothing. Cancelling ctx stops between files.
func (p *Pass) Run(ctx context.Context) (Report, error) {
	var report Report

	info, err := os.Stat(p.layout.Root)
	if err != nil || !info.IsDir() {
		return report, fmt.Errorf("%w: %s", ErrRootNotFound, p.layout.Root)
	}

	xmls, err := ambiguousFiles(p.layout.XMLDir(), payslip.ClassXML)
	if err != nil {
		return report, err
	}
	p.logger.Info("renaming XML receipts", zap.Int("candidates", len(xmls)))
	for _, path := range xmls {
		if ctx.Err() != nil {
			report.Interrupted = true
			return report, nil
		}
		report.Scanned++
		date, err := payslip.DateFromXMLFile(path)
		if err != nil {
			p.unresolved(ctx, &report, path, err)
			continue
		}
		p.rename(ctx, &report, path, date)
	}

	pdfs, err := ambiguousFiles(p.layout.PDFDir(), payslip.ClassPDF)
	if err != nil {
		return report, err
	}
	p.logger.Info("renaming PDF receipts", zap.Int("candidates", len(pdfs)))
	for _, path := range pdfs {
		if ctx.Err() != nil {
			report.Interrupted = true
			return report, nil
		}
		report.Scanned++
		date, err := p.pdfDate(path)
		if err != nil {
			p.unresolved(ctx, &report, path, err)
			continue
		}
		p.rename(ctx, &report, path, date)
	}

	p.logger.Info("rename pass complete",
		zap.Int("xml_renamed", report.XMLRenamed),
		zap.Int("pdf_renamed", report.PDFRenamed),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("unresolved", report.Unresolved),
	)
	return report, nil
}

// pdfDate tries the sibling XML with the same stem, then the only canonical
// XML for that day, then the PDF's own text.
func (p *Pass) pdfDate(path string) (payslip.Date, error) {
	stem := payslip.Stem(path)

	sibling := filepath.Join(p.layout.XMLDir(), stem+".xml")
	if p.files.Exists(sibling) {
		if date, err := payslip.DateFromXMLFile(sibling); err == nil {
			return date, nil
		}
	}

	dayStem, _ := payslip.DayStem(path)
	day, err := strconv.Atoi(dayStem)
	if err == nil {
		matches, err := canonicalXMLsForDay(p.layout.XMLDir(), day)
		if err != nil {
			return payslip.Date{}, err
		}
		switch len(matches) {
		case 1:
			return matches[0], nil
		case 0:
		default:
			p.logger.Debug("several XMLs share the day, reading PDF",
				zap.String("file", filepath.Base(path)),
				zap.Int("matches", len(matches)),
			)
		}
	}

	return payslip.DateFromPDFFile(path)
}

func (p *Pass) rename(ctx context.Context, report *Report, path string, date payslip.Date) {
	name := filepath.Base(path)
	result, err := p.namer.Rename(path, date)
	if err != nil {
		p.unresolved(ctx, report, path, err)
		return
	}

	outcome := ledger.OutcomeUnchanged
	switch result.Outcome {
	case payslip.Renamed:
		outcome = ledger.OutcomeRenamed
		if payslip.Classify(name) == payslip.ClassXML {
			report.XMLRenamed++
		} else {
			report.PDFRenamed++
		}
		p.logger.Info("renamed", zap.String("file", name), zap.String("name", filepath.Base(result.Path)))
	case payslip.Duplicate:
		outcome = ledger.OutcomeDuplicate
		report.Duplicates++
		p.logger.Info("duplicate discarded", zap.String("file", name), zap.String("existing", filepath.Base(result.Path)))
	}
	p.record(ctx, name, result.Path, outcome, date)
}

func (p *Pass) unresolved(ctx context.Context, report *Report, path string, err error) {
	report.Unresolved++
	name := filepath.Base(path)
	p.logger.Warn("could not date file, keeping name", zap.String("file", name), zap.Error(err))
	p.record(ctx, name, path, ledger.OutcomeUnresolved, payslip.Date{})
}

func (p *Pass) record(ctx context.Context, name, path, outcome string, date payslip.Date) {
	if p.recorder == nil {
		return
	}
	a := ledger.Artifact{
		Index:        -1,
		OriginalName: name,
		Path:         path,
		Class:        payslip.Classify(name).String(),
		Outcome:      outcome,
	}
	if !date.IsZero() {
		a.Date = date.String()
	}
	if err := p.recorder.RecordArtifact(context.WithoutCancel(ctx), a); err != nil {
		p.logger.Warn("failed to record artifact", zap.String("file", name), zap.Error(err))
	}
}

// ambiguousFiles lists the day-named files of class c in dir, sorted. A
// missing dir holds nothing.
func ambiguousFiles(dir string, c payslip.Class) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &storage.Error{Op: "list", Path: dir, Cause: err}
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if payslip.Classify(name) == c && payslip.IsAmbiguousName(name) {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func canonicalXMLsForDay(dir string, day int) ([]payslip.Date, error) {
	pattern := filepath.Join(dir, fmt.Sprintf("%s*_%d.xml", payslip.CanonicalPrefix, day))
	names, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	var dates []payslip.Date
	for _, name := range names {
		if d, ok := payslip.DateFromCanonicalName(name); ok && d.Day == strconv.Itoa(day) {
			dates = append(dates, d)
		}
	}
	return dates, nil
}
