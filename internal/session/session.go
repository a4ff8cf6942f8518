// Package session owns the authenticated browser session against the OBS
// portal. The session is an explicit state machine — Unstarted, LoggedIn,
// Closed — and page operations are rejected outside LoggedIn.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/obs-watcher/internal/captcha"
)

// State of the portal session.
type State int

const (
	Unstarted State = iota
	LoggedIn
	Closed
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case LoggedIn:
		return "logged_in"
	case Closed:
		return "closed"
	}
	return "unknown"
}

var (
	ErrNotLoggedIn     = errors.New("session not logged in")
	ErrClosed          = errors.New("session closed")
	ErrLoginFailed     = errors.New("login failed")
	ErrCaptchaUnsolved = errors.New("captcha could not be solved")
)

// Login-page element ids on the portal.
const (
	selUsername = "#txtParamT01"
	selPassword = "#txtParamT02"
	selCaptcha  = "#imgCaptchaImg"
	selSecCode  = "#txtSecCode"
	selLogin    = "#btnLogin"
)

// Config carries the portal endpoints and timing knobs.
type Config struct {
	LoginURL     string
	GradesURL    string
	Username     string
	Password     string
	Headless     bool
	LoginRetries int
	PageTimeout  time.Duration
	SettleDelay  time.Duration
	RetryDelay   time.Duration
}

// Session drives one headless browser against the portal. Not safe for
// concurrent use; the watcher runs strictly sequentially.
type Session struct {
	cfg    Config
	solver *captcha.Solver
	logger *zap.Logger

	state        State
	browserCtx   context.Context
	allocCancel  context.CancelFunc
	browseCancel context.CancelFunc
	sleep        func(context.Context, time.Duration)
}

func New(cfg Config, solver *captcha.Solver, logger *zap.Logger) *Session {
	if cfg.LoginRetries <= 0 {
		cfg.LoginRetries = 2
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 15 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 3 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &Session{cfg: cfg, solver: solver, logger: logger, sleep: sleepCtx}
}

// State returns the current session state.
func (s *Session) State() State { return s.state }

func (s *Session) startBrowser() {
	if s.browserCtx != nil {
		return
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browseCancel := chromedp.NewContext(allocCtx)
	s.browserCtx = browserCtx
	s.allocCancel = allocCancel
	s.browseCancel = browseCancel
}

// Login authenticates against the portal, retrying with a freshly rendered
// captcha after a fixed delay. The captcha is the usual reason an attempt
// fails: both tiers misread it now and then.
func (s *Session) Login(ctx context.Context) error {
	switch s.state {
	case Closed:
		return ErrClosed
	case LoggedIn:
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.LoginRetries; attempt++ {
		s.logger.Info("login attempt",
			zap.Int("attempt", attempt), zap.Int("max", s.cfg.LoginRetries))

		if err := s.attemptLogin(ctx); err != nil {
			lastErr = err
			s.logger.Warn("login attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			if attempt < s.cfg.LoginRetries {
				s.sleep(ctx, s.cfg.RetryDelay)
			}
			continue
		}
		s.state = LoggedIn
		s.logger.Info("login successful")
		return nil
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrLoginFailed, s.cfg.LoginRetries, lastErr)
}

func (s *Session) attemptLogin(ctx context.Context) error {
	s.startBrowser()

	taskCtx, cancel := context.WithTimeout(s.browserCtx, s.cfg.PageTimeout+s.cfg.SettleDelay*3)
	defer cancel()
	taskCtx = mergeCancel(taskCtx, ctx)

	err := chromedp.Run(taskCtx,
		chromedp.Navigate(s.cfg.LoginURL),
		chromedp.WaitVisible(selUsername, chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleDelay),
		chromedp.SetValue(selUsername, s.cfg.Username, chromedp.ByQuery),
		chromedp.SetValue(selPassword, s.cfg.Password, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("fill credentials: %w", err)
	}

	answer, err := s.solveCaptcha(taskCtx)
	if err != nil {
		return err
	}

	var pageHTML, location string
	err = chromedp.Run(taskCtx,
		chromedp.SetValue(selSecCode, answer, chromedp.ByQuery),
		chromedp.Click(selLogin, chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleDelay),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &pageHTML, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}

	if !loginSucceeded(pageHTML, location) {
		return fmt.Errorf("%w: portal rejected credentials or captcha answer", ErrLoginFailed)
	}
	return nil
}

// solveCaptcha screenshots the captcha element (a cropped element capture,
// not the full page) and runs it through the solver.
func (s *Session) solveCaptcha(ctx context.Context) (string, error) {
	var shot []byte
	err := chromedp.Run(ctx,
		chromedp.Screenshot(selCaptcha, &shot, chromedp.NodeVisible, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("capture captcha element: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(shot))
	if err != nil {
		return "", fmt.Errorf("decode captcha image: %w", err)
	}

	answer := s.solver.Solve(ctx, img)
	if answer == "" {
		return "", ErrCaptchaUnsolved
	}
	s.logger.Info("captcha solved", zap.String("answer", answer))
	return answer, nil
}

// loginSucceeded checks the post-submit page for the portal's landing
// markers.
func loginSucceeded(pageHTML, location string) bool {
	lower := strings.ToLower(pageHTML)
	if strings.Contains(lower, "çıkış") ||
		strings.Contains(lower, "logout") ||
		strings.Contains(lower, "hoşgeldiniz") {
		return true
	}
	return strings.Contains(strings.ToLower(location), "start.aspx")
}

// FetchResultsPage navigates to the grades page and returns its rendered
// HTML. When the top document carries no table the portal has rendered the
// grid inside a frame, so the first iframe's document is returned instead.
func (s *Session) FetchResultsPage(ctx context.Context) (string, error) {
	switch s.state {
	case Closed:
		return "", ErrClosed
	case Unstarted:
		return "", ErrNotLoggedIn
	}

	taskCtx, cancel := context.WithTimeout(s.browserCtx, s.cfg.PageTimeout+s.cfg.SettleDelay)
	defer cancel()
	taskCtx = mergeCancel(taskCtx, ctx)

	var pageHTML string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(s.cfg.GradesURL),
		chromedp.Sleep(s.cfg.SettleDelay),
		chromedp.OuterHTML("html", &pageHTML, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("fetch grades page: %w", err)
	}

	if !strings.Contains(strings.ToLower(pageHTML), "<table") {
		if frameHTML, ferr := s.firstFrameHTML(taskCtx); ferr == nil && frameHTML != "" {
			s.logger.Info("grades grid found inside frame")
			return frameHTML, nil
		}
	}
	return pageHTML, nil
}

// firstFrameHTML switches the query context into the page's first iframe
// and reads its document.
func (s *Session) firstFrameHTML(ctx context.Context) (string, error) {
	var frames []*cdp.Node
	if err := chromedp.Run(ctx,
		chromedp.Nodes("iframe", &frames, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	); err != nil {
		return "", err
	}
	if len(frames) == 0 {
		return "", nil
	}
	var frameHTML string
	err := chromedp.Run(ctx,
		chromedp.OuterHTML("html", &frameHTML, chromedp.ByQuery, chromedp.FromNode(frames[0])),
	)
	return frameHTML, err
}

// Close shuts the browser down. Idempotent; the session cannot be reused.
func (s *Session) Close() {
	if s.state == Closed {
		return
	}
	if s.browseCancel != nil {
		s.browseCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx = nil
	s.state = Closed
}

// mergeCancel derives a context that is canceled when either parent is.
func mergeCancel(task, outer context.Context) context.Context {
	merged, cancel := context.WithCancel(task)
	go func() {
		select {
		case <-outer.Done():
			cancel()
		case <-merged.Done():
		}
	}()
	return merged
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
