package crawler

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/payslip-crawler/internal/session"
	"go.uber.org/zap"
)

// Entry brings a fresh session to the document list and returns the URL
// that shows the list again later.
type Entry interface {
	Open(ctx context.Context, sess session.Session) (string, error)
}

// Credentials are the portal login.
type Credentials struct {
	Username string
	Password string
}

// Portal logs into the self-service portal and opens the document records
// list with the payroll filter removed.
type Portal struct {
	LoginURL     string
	DocumentsURL string
	Credentials  Credentials
	Selectors    Selectors
	Logger       *zap.Logger
}

var _ Entry = (*Portal)(nil)

// Open logs in and navigates to the document list.
func (p *Portal) Open(ctx context.Context, sess session.Session) (string, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := p.login(ctx, sess, logger); err != nil {
		return "", err
	}

	logger.Info("opening personal information page", zap.String("url", p.DocumentsURL))
	if err := sess.Navigate(ctx, p.DocumentsURL); err != nil {
		return "", &RunError{Phase: "navigate", Cause: err}
	}
	waitIdle(ctx, sess, logger)

	if err := clickFirst(ctx, sess, p.Selectors.DocumentsLink); err != nil {
		capture(ctx, sess, logger, "error_documents_link")
		return "", &RunError{Phase: "navigate", Cause: fmt.Errorf("documents link: %w", err)}
	}
	waitIdle(ctx, sess, logger)

	if err := clickFirst(ctx, sess, p.Selectors.RemoveFilter); err != nil {
		logger.Warn("could not remove payroll filter, continuing", zap.Error(err))
	} else {
		logger.Info("payroll filter removed")
		waitIdle(ctx, sess, logger)
	}

	listURL, err := sess.CurrentURL(ctx)
	if err != nil {
		return "", &RunError{Phase: "navigate", Cause: err}
	}
	logger.Info("document list ready", zap.String("url", listURL))
	return listURL, nil
}

func (p *Portal) login(ctx context.Context, sess session.Session, logger *zap.Logger) error {
	logger.Info("opening login page", zap.String("url", p.LoginURL))
	if err := sess.Navigate(ctx, p.LoginURL); err != nil {
		return &RunError{Phase: "login", Cause: err}
	}
	waitIdle(ctx, sess, logger)

	fields := []struct {
		name      string
		selectors []string
		value     string
	}{
		{"username", p.Selectors.Username, p.Credentials.Username},
		{"password", p.Selectors.Password, p.Credentials.Password},
	}
	for _, f := range fields {
		handles, sel, err := sess.Locate(ctx, f.selectors)
		if err == nil && len(handles) == 0 {
			err = ErrElementNotFound
		}
		if err == nil {
			err = sess.Fill(ctx, handles[0], f.value)
		}
		if err != nil {
			capture(ctx, sess, logger, "error_login_"+f.name)
			return &RunError{Phase: "login", Cause: fmt.Errorf("%w: %s field: %w", ErrAuthentication, f.name, err)}
		}
		logger.Debug("login field filled", zap.String("field", f.name), zap.String("selector", sel))
	}

	if err := clickFirst(ctx, sess, p.Selectors.Submit); err != nil {
		capture(ctx, sess, logger, "error_login_submit")
		return &RunError{Phase: "login", Cause: fmt.Errorf("%w: submit: %w", ErrAuthentication, err)}
	}
	waitIdle(ctx, sess, logger)

	url, err := sess.CurrentURL(ctx)
	if err != nil {
		return &RunError{Phase: "login", Cause: err}
	}
	if strings.Contains(strings.ToLower(url), "login") {
		capture(ctx, sess, logger, "error_after_login")
		return &RunError{Phase: "login", Cause: fmt.Errorf("%w: still on %s", ErrAuthentication, url)}
	}

	logger.Info("logged in", zap.String("url", url))
	return nil
}

// clickFirst clicks the first element matched by the first selector that
// matches anything.
func clickFirst(ctx context.Context, sess session.Session, selectors []string) error {
	handles, _, err := sess.Locate(ctx, selectors)
	if err != nil {
		return err
	}
	if len(handles) == 0 {
		return ErrElementNotFound
	}
	return sess.Click(ctx, handles[0])
}

func waitIdle(ctx context.Context, sess session.Session, logger *zap.Logger) {
	if err := sess.WaitIdle(ctx); err != nil {
		logger.Debug("page did not settle", zap.Error(err))
	}
}

func capture(ctx context.Context, sess session.Session, logger *zap.Logger, label string) {
	if err := sess.CaptureDiagnostic(context.WithoutCancel(ctx), label); err != nil {
		logger.Warn("failed to capture diagnostic", zap.String("label", label), zap.Error(err))
	}
}
