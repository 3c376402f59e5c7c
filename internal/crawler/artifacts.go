package crawler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jonathan/payslip-crawler/internal/ledger"
	"github.com/jonathan/payslip-crawler/internal/payslip"
	"github.com/jonathan/payslip-crawler/internal/session"
	"github.com/jonathan/payslip-crawler/internal/storage"
	"go.uber.org/zap"
)

// Recorder receives every artifact the crawl handles.
type Recorder interface {
	RecordArtifact(ctx context.Context, a ledger.Artifact) error
}

// itemResult counts what happened to the files of one item.
type itemResult struct {
	Files      int
	Renamed    int
	Duplicates int
	Unresolved int
}

// downloader saves the files attached to an open detail page.
type downloader struct {
	sess     session.Session
	sel      Selectors
	layout   payslip.Layout
	files    storage.FileStore
	namer    *payslip.Namer
	recorder Recorder
	logger   *zap.Logger
}

// fallbackName names a download the portal sent without a name.
func fallbackName(index, k int) string {
	return fmt.Sprintf("archivo_%d_%d", index+1, k+1)
}

func sanitizeName(suggested string, index, k int) string {
	name := filepath.Base(strings.TrimSpace(suggested))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return fallbackName(index, k)
	}
	return name
}

// download fetches every artifact of the item at index. Failures of single
// files are logged and skipped. Ambiguously named XMLs are renamed at once;
// ambiguous PDFs wait until all files are in so they can borrow the XML's
// date.
func (d *downloader) download(ctx context.Context, index int) (itemResult, error) {
	var res itemResult

	icons, _, err := d.sess.Locate(ctx, d.sel.Download)
	if err != nil {
		return res, fmt.Errorf("failed to locate download controls: %w", err)
	}
	total := len(icons)
	d.logger.Info("detail page open", zap.Int("index", index), zap.Int("downloads", total))

	var itemDate payslip.Date
	var pendingPDFs []pendingFile

	for k := 0; k < total; k++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		// The page re-renders after each download; stale handles fail.
		icons, _, err = d.sess.Locate(ctx, d.sel.Download)
		if err != nil {
			d.logger.Warn("failed to relocate download controls", zap.Int("index", index), zap.Error(err))
			continue
		}
		if k >= len(icons) {
			break
		}

		icon := icons[k]
		dl, err := d.sess.ExpectDownload(ctx, func(ctx context.Context) error {
			return d.sess.Click(ctx, icon)
		})
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			d.logger.Warn("download failed",
				zap.Int("index", index),
				zap.Int("file", k+1),
				zap.Error(err),
			)
			continue
		}

		name := sanitizeName(dl.SuggestedName, index, k)
		dst := d.layout.PathFor(name)
		if d.files.Exists(dst) {
			if date, ok := payslip.DateFromCanonicalName(name); ok {
				res.Files++
				res.Duplicates++
				d.logger.Info("duplicate discarded",
					zap.Int("index", index),
					zap.String("file", name),
				)
				d.record(ctx, index, name, dst, ledger.OutcomeDuplicate, date)
				continue
			}
			dst = d.freePath(name, index)
			d.logger.Info("name taken, storing under alternate name",
				zap.Int("index", index),
				zap.String("file", name),
				zap.String("stored_as", filepath.Base(dst)),
			)
		}
		if err := dl.Save(dst); err != nil {
			d.logger.Warn("failed to store download",
				zap.Int("index", index),
				zap.String("file", name),
				zap.Error(err),
			)
			continue
		}
		res.Files++
		d.logger.Info("downloaded",
			zap.Int("index", index),
			zap.String("file", name),
			zap.String("class", payslip.Classify(name).String()),
		)

		if !payslip.IsAmbiguousName(name) {
			d.record(ctx, index, name, dst, ledger.OutcomeSaved, payslip.Date{})
			continue
		}

		switch payslip.Classify(name) {
		case payslip.ClassXML:
			date, err := payslip.DateFromXMLFile(dst)
			if err != nil {
				d.unresolved(ctx, &res, index, name, dst, err)
				continue
			}
			itemDate = date
			d.rename(ctx, &res, index, name, dst, date)
		case payslip.ClassPDF:
			pendingPDFs = append(pendingPDFs, pendingFile{name: name, path: dst})
		}
	}

	for _, pdf := range pendingPDFs {
		date, err := d.resolvePDFDate(ctx, pdf.path, itemDate)
		if err != nil {
			d.unresolved(ctx, &res, index, pdf.name, pdf.path, err)
			continue
		}
		d.rename(ctx, &res, index, pdf.name, pdf.path, date)
	}

	return res, nil
}

// freePath returns a destination for name that no file holds yet.
func (d *downloader) freePath(name string, index int) string {
	for attempt := 1; ; attempt++ {
		dst := d.layout.PathFor(payslip.AlternateName(name, index+1, attempt))
		if !d.files.Exists(dst) {
			return dst
		}
	}
}

type pendingFile struct {
	name string
	path string
}

// resolvePDFDate tries, in order: the date of the XML from the same item, a
// sibling "<day>.xml", the PDF's own text and finally the detail page text.
func (d *downloader) resolvePDFDate(ctx context.Context, path string, itemDate payslip.Date) (payslip.Date, error) {
	if !itemDate.IsZero() {
		return itemDate, nil
	}

	sibling := filepath.Join(d.layout.XMLDir(), payslip.Stem(path)+".xml")
	if d.files.Exists(sibling) {
		if date, err := payslip.DateFromXMLFile(sibling); err == nil {
			return date, nil
		}
	}

	date, err := payslip.DateFromPDFFile(path)
	if err == nil {
		return date, nil
	}
	d.logger.Debug("no date in PDF content", zap.String("file", filepath.Base(path)), zap.Error(err))

	html, err := d.sess.Content(ctx)
	if err != nil {
		return payslip.Date{}, fmt.Errorf("failed to read detail page: %w", err)
	}
	return payslip.DateFromHTML(html)
}

func (d *downloader) rename(ctx context.Context, res *itemResult, index int, name, path string, date payslip.Date) {
	result, err := d.namer.Rename(path, date)
	if err != nil {
		d.unresolved(ctx, res, index, name, path, err)
		return
	}

	switch result.Outcome {
	case payslip.Duplicate:
		res.Duplicates++
		d.logger.Info("duplicate discarded",
			zap.Int("index", index),
			zap.String("file", name),
			zap.String("existing", filepath.Base(result.Path)),
		)
		d.record(ctx, index, name, result.Path, ledger.OutcomeDuplicate, date)
	case payslip.Renamed:
		res.Renamed++
		d.logger.Info("renamed",
			zap.Int("index", index),
			zap.String("file", name),
			zap.String("name", filepath.Base(result.Path)),
		)
		d.record(ctx, index, name, result.Path, ledger.OutcomeRenamed, date)
	default:
		d.record(ctx, index, name, result.Path, ledger.OutcomeUnchanged, date)
	}
}

func (d *downloader) unresolved(ctx context.Context, res *itemResult, index int, name, path string, err error) {
	res.Unresolved++
	if errors.Is(err, payslip.ErrDateNotFound) {
		d.logger.Warn("date not found, keeping original name",
			zap.Int("index", index),
			zap.String("file", name),
		)
	} else {
		d.logger.Warn("could not rename, keeping original name",
			zap.Int("index", index),
			zap.String("file", name),
			zap.Error(err),
		)
	}
	d.record(ctx, index, name, path, ledger.OutcomeUnresolved, payslip.Date{})
}

func (d *downloader) record(ctx context.Context, index int, name, path, outcome string, date payslip.Date) {
	if d.recorder == nil {
		return
	}
	a := ledger.Artifact{
		Index:        index,
		OriginalName: name,
		Path:         path,
		Class:        payslip.Classify(name).String(),
		Outcome:      outcome,
	}
	if !date.IsZero() {
		a.Date = date.String()
	}
	if err := d.recorder.RecordArtifact(context.WithoutCancel(ctx), a); err != nil {
		d.logger.Warn("failed to record artifact", zap.String("file", name), zap.Error(err))
	}
}
