// Package browser drives the NotebookLM web app through Chrome with go-rod.
// Each Session owns one Chrome process started on a persistent profile
// directory, so the Google login survives between runs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/Ning0612/nbsync/internal/adapter"
	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/logger"
)

const (
	// HomeURL is the NotebookLM landing page
	HomeURL = "https://notebooklm.google.com/"

	// SignInURL starts the Google login flow and returns to NotebookLM
	SignInURL = "https://accounts.google.com/v3/signin/identifier?" +
		"continue=https%3A%2F%2Fnotebooklm.google.com%2F&flowName=GlifWebSignIn&flowEntry=ServiceLogin"

	loginHost = "accounts.google.com"

	// settle gives the Angular app time to render after navigation
	settle = 2500 * time.Millisecond
)

// Options configures Chrome
type Options struct {
	ProfileDir        string
	Headless          bool
	Bin               string
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
}

func (o Options) viewport() (int, int) {
	w, h := o.ViewportWidth, o.ViewportHeight
	if w <= 0 {
		w = 1600
	}
	if h <= 0 {
		h = 1100
	}
	return w, h
}

func (o Options) navTimeout() time.Duration {
	if o.NavigationTimeout <= 0 {
		return 120 * time.Second
	}
	return o.NavigationTimeout
}

// Driver opens browser sessions with fixed options
type Driver struct {
	opts Options
}

// NewDriver creates a Driver
func NewDriver(opts Options) *Driver {
	return &Driver{opts: opts}
}

// Open launches Chrome, navigates to the notebook and verifies the login.
// It satisfies adapter.Opener.
func (d *Driver) Open(ctx context.Context, notebookURL string) (adapter.Remote, error) {
	s, err := d.Launch(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Goto(ctx, notebookURL); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.RequireLogin(); err != nil {
		s.Close()
		return nil, err
	}
	s.expandSourcePanel(ctx)
	return s, nil
}

// Launch starts Chrome on the profile with a blank page
func (d *Driver) Launch(ctx context.Context) (*Session, error) {
	if d.opts.ProfileDir == "" {
		return nil, domain.Validationf("browser profile directory is required")
	}

	l := launcher.New().
		Context(ctx).
		UserDataDir(d.opts.ProfileDir).
		Headless(d.opts.Headless).
		Set(flags.Flag("disable-blink-features"), "AutomationControlled").
		Set(flags.Flag("disable-dev-shm-usage")).
		Set(flags.Flag("no-first-run")).
		Set(flags.Flag("no-default-browser-check"))
	if d.opts.Bin != "" {
		l = l.Bin(d.opts.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, &domain.RemoteError{Op: "launch", Err: errors.Join(domain.ErrRemoteTransient, err)}
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, &domain.RemoteError{Op: "connect", Err: errors.Join(domain.ErrRemoteTransient, err)}
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		b.Close()
		l.Kill()
		return nil, &domain.RemoteError{Op: "new page", Err: errors.Join(domain.ErrRemoteTransient, err)}
	}

	w, h := d.opts.viewport()
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             w,
		Height:            h,
		DeviceScaleFactor: 1.0,
	}); err != nil {
		logger.Get().Warn("failed to set viewport", "error", err)
	}

	logger.Get().Debug("browser launched", "profile", d.opts.ProfileDir, "headless", d.opts.Headless)
	return &Session{
		launcher: l,
		browser:  b,
		page:     page,
		opts:     d.opts,
	}, nil
}

// Session is one Chrome process with one page
type Session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	opts     Options
}

// Page exposes the underlying rod page
func (s *Session) Page() *rod.Page {
	return s.page
}

// Goto navigates and waits for the app to settle
func (s *Session) Goto(ctx context.Context, url string) error {
	p := s.page.Context(ctx).Timeout(s.opts.navTimeout())
	if err := p.Navigate(url); err != nil {
		return &domain.RemoteError{Op: "navigate", Err: errors.Join(domain.ErrRemoteTransient, err)}
	}
	if err := p.WaitLoad(); err != nil {
		logger.Get().Debug("page load wait ended early", "url", url, "error", err)
	}
	return pause(ctx, settle)
}

// CurrentURL returns the page location, "" when unknown
func (s *Session) CurrentURL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// RequireLogin fails with ErrRemoteAuth when Google redirected to sign-in
func (s *Session) RequireLogin() error {
	if IsLoginURL(s.CurrentURL()) {
		return fmt.Errorf("%w: NotebookLM redirected to Google login, run `nbsync auth setup`", domain.ErrRemoteAuth)
	}
	return nil
}

// Close shuts Chrome down. The profile directory is kept.
func (s *Session) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher = nil
	}
	return err
}

// IsLoginURL reports whether url is on the Google sign-in host
func IsLoginURL(url string) bool {
	return strings.Contains(url, loginHost)
}

// pause sleeps for d unless ctx ends first
func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
