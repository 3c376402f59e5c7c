package crawler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jonathan/payslip-crawler/internal/session"
)

// testSelectors uses one opaque token per element; fakeSession dispatches
// on them.
func testSelectors() Selectors {
	return Selectors{
		Username:      []string{"user"},
		Password:      []string{"pass"},
		Submit:        []string{"submit"},
		DocumentsLink: []string{"documents"},
		RemoveFilter:  []string{"filter"},
		Items:         []string{"item"},
		LoadMore:      []string{"more"},
		Download:      []string{"dl"},
		Back:          []string{"back"},
	}
}

type fakeFile struct {
	name    string
	content string
}

type fakeHandle struct {
	kind  string
	index int
}

func (h fakeHandle) Selector() string { return h.kind }

// fakeSession simulates the portal: a paginated list that resets to one
// batch on every navigation, and detail pages with downloadable files.
type fakeSession struct {
	mu sync.Mutex

	batch    int
	total    int
	files    map[int][]fakeFile
	failOpen map[int]bool
	// listBrokenFrom makes the list render empty once the crawl returns
	// from the item at that index. -1 disables.
	listBrokenFrom int
	noBack         bool
	pageText       string
	onOpen         func(index int)
	loginStuck     bool
	// staleMore keeps the load more control around after the list is
	// exhausted.
	staleMore bool

	page     string
	visible  int
	current  int
	url      string
	pending  *fakeFile
	broken   bool
	filled   map[string]string
	opened   []int
	expands  int
	navs     []string
	captures []string
	closed   bool
}

func newFakeSession(total, batch int) *fakeSession {
	return &fakeSession{
		batch:          batch,
		total:          total,
		files:          make(map[int][]fakeFile),
		failOpen:       make(map[int]bool),
		filled:         make(map[string]string),
		listBrokenFrom: -1,
		current:        -1,
	}
}

func (f *fakeSession) showList() {
	f.page = "list"
	f.url = "https://portal.test/documents"
	f.visible = min(f.batch, f.total)
}

func (f *fakeSession) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navs = append(f.navs, url)
	switch url {
	case "https://portal.test/login":
		f.page, f.url = "login", url
	case "https://portal.test/info":
		f.page, f.url = "info", url
	default:
		f.showList()
	}
	return nil
}

func (f *fakeSession) WaitIdle(context.Context) error { return nil }

func (f *fakeSession) Locate(_ context.Context, selectors []string) ([]session.Handle, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sel := range selectors {
		if hs := f.match(sel); len(hs) > 0 {
			return hs, sel, nil
		}
	}
	return nil, "", nil
}

func (f *fakeSession) match(sel string) []session.Handle {
	one := func(kind string) []session.Handle { return []session.Handle{fakeHandle{kind: kind}} }
	switch {
	case sel == "user" && f.page == "login",
		sel == "pass" && f.page == "login",
		sel == "submit" && f.page == "login":
		return one(sel)
	case sel == "documents" && f.page == "info":
		return one(sel)
	case sel == "filter" && f.page == "list":
		return one(sel)
	case sel == "item" && f.page == "list" && !f.broken:
		hs := make([]session.Handle, f.visible)
		for i := range hs {
			hs[i] = fakeHandle{kind: "item", index: i}
		}
		return hs
	case sel == "more" && f.page == "list" && (f.visible < f.total || f.staleMore):
		return one(sel)
	case sel == "dl" && f.page == "detail":
		files := f.files[f.current]
		hs := make([]session.Handle, len(files))
		for i := range hs {
			hs[i] = fakeHandle{kind: "dl", index: i}
		}
		return hs
	case sel == "back" && f.page == "detail" && !f.noBack:
		return one(sel)
	}
	return nil
}

func (f *fakeSession) Click(_ context.Context, h session.Handle) error {
	f.mu.Lock()
	fh := h.(fakeHandle)

	switch fh.kind {
	case "submit":
		if f.loginStuck {
			f.url = "https://portal.test/login?error=1"
		} else {
			f.page, f.url = "home", "https://portal.test/home"
		}
	case "documents":
		f.showList()
	case "filter":
	case "more":
		f.expands++
		f.visible = min(f.visible+f.batch, f.total)
	case "item":
		if f.failOpen[fh.index] {
			f.mu.Unlock()
			return errors.New("detail page did not open")
		}
		f.page = "detail"
		f.current = fh.index
		f.opened = append(f.opened, fh.index)
		onOpen := f.onOpen
		f.mu.Unlock()
		if onOpen != nil {
			onOpen(fh.index)
		}
		return nil
	case "dl":
		file := f.files[f.current][fh.index]
		f.pending = &file
	case "back":
		f.showList()
		if f.listBrokenFrom >= 0 && f.current >= f.listBrokenFrom {
			f.broken = true
		}
	}
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) Fill(_ context.Context, h session.Handle, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filled[h.Selector()] = value
	return nil
}

func (f *fakeSession) ExpectDownload(ctx context.Context, action func(context.Context) error) (*session.Download, error) {
	if err := action(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	file := f.pending
	f.pending = nil
	f.mu.Unlock()
	if file == nil {
		return nil, session.ErrDownloadNotStarted
	}
	return &session.Download{
		SuggestedName: file.name,
		Save: func(dst string) error {
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			return os.WriteFile(dst, []byte(file.content), 0o644)
		},
	}, nil
}

func (f *fakeSession) CurrentURL(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeSession) Content(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageText, nil
}

func (f *fakeSession) CaptureDiagnostic(_ context.Context, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures = append(f.captures, label)
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// listEntry is an Entry that lands directly on the list.
type listEntry struct{}

func (listEntry) Open(ctx context.Context, sess session.Session) (string, error) {
	if err := sess.Navigate(ctx, "https://portal.test/documents"); err != nil {
		return "", err
	}
	return sess.CurrentURL(ctx)
}

func receiptXML(year, month, day int) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" xmlns:nomina12="http://www.sat.gob.mx/nomina12" Fecha="%04d-%02d-%02dT09:00:00">
  <cfdi:Complemento><nomina12:Nomina FechaPago="%04d-%02d-%02d"/></cfdi:Complemento>
</cfdi:Comprobante>`, year, month, day, year, month, day)
}
