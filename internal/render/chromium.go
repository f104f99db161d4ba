package render

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	appErrors "github.com/studtime/studtime/pkg/errors"
)

// Config tunes the shared headless-browser renderer.
type Config struct {
	// ExecPath overrides the browser binary; empty lets chromedp locate one.
	ExecPath       string
	ViewportWidth  int
	ViewportHeight int
	RenderTimeout  time.Duration
	StartTimeout   time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ViewportWidth <= 0 {
		out.ViewportWidth = 1600
	}
	if out.ViewportHeight <= 0 {
		out.ViewportHeight = 900
	}
	if out.RenderTimeout <= 0 {
		out.RenderTimeout = 30 * time.Second
	}
	if out.StartTimeout <= 0 {
		out.StartTimeout = 20 * time.Second
	}
	return out
}

// session is one browser process lifetime. ready closes once the start
// attempt finished; err then tells whether the browser came up.
type session struct {
	ready      chan struct{}
	browserCtx context.Context
	cancel     context.CancelFunc
	err        error
}

// Manager owns the single long-lived renderer process. Concurrent callers
// that all observe "not connected" share one in-flight start attempt; the
// process is never started twice concurrently.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	current *session

	onRestart func()
}

// NewManager builds an idle manager; the browser starts lazily on first use.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg.withDefaults(), logger: logger}
}

// OnRestart registers a hook fired on every forced process restart.
func (m *Manager) OnRestart(fn func()) {
	m.onRestart = fn
}

// Render captures a full-page raster of the given markup on an isolated
// page of the shared process. A transient failure forces a process restart
// and retries exactly once; anything else propagates with the failing
// markup logged for diagnosis.
func (m *Manager) Render(ctx context.Context, markup string) ([]byte, error) {
	png, err := m.renderOnce(ctx, markup)
	if err == nil {
		return png, nil
	}
	if ctx.Err() != nil || !isTransient(err) {
		m.logger.Error("render failed", zap.Error(err), zap.String("markup", markup))
		return nil, appErrors.Wrap(err, appErrors.ErrRendererFatal.Code, appErrors.ErrRendererFatal.Status, "render failed")
	}

	m.logger.Warn("transient renderer failure, restarting process", zap.Error(err))
	m.restart()

	png, err = m.renderOnce(ctx, markup)
	if err != nil {
		m.logger.Error("render failed after restart", zap.Error(err), zap.String("markup", markup))
		return nil, appErrors.Wrap(err, appErrors.ErrRendererFatal.Code, appErrors.ErrRendererFatal.Status, "render failed after restart")
	}
	return png, nil
}

func (m *Manager) renderOnce(ctx context.Context, markup string) ([]byte, error) {
	s, err := m.ensureStarted(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrRendererTransient.Code, appErrors.ErrRendererTransient.Status, "renderer start failed")
	}

	// Each request gets its own page; the shared process stays up.
	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	defer tabCancel()

	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, m.cfg.RenderTimeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(m.cfg.ViewportWidth), int64(m.cfg.ViewportHeight)),
		chromedp.Navigate("data:text/html," + url.PathEscape(markup)),
		chromedp.WaitVisible(`[data-ready="true"]`, chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	}
	if err := chromedp.Run(tabCtx, tasks); err != nil {
		return nil, err
	}
	return png, nil
}

// ensureStarted returns the live session, collapsing concurrent start
// attempts into a single memoized one.
func (m *Manager) ensureStarted(ctx context.Context) (*session, error) {
	m.mu.Lock()
	s := m.current
	if s == nil {
		s = &session{ready: make(chan struct{})}
		m.current = s
		go m.start(s)
	}
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ready:
	}

	if s.err != nil {
		m.drop(s)
		return nil, s.err
	}
	return s, nil
}

func (m *Manager) start(s *session) {
	defer close(s.ready)

	opts := chromedp.DefaultExecAllocatorOptions[:]
	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	s.browserCtx = browserCtx
	s.cancel = func() {
		browserCancel()
		allocCancel()
	}

	startCtx, cancel := context.WithTimeout(browserCtx, m.cfg.StartTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		s.err = err
		s.cancel()
		return
	}
	m.logger.Info("renderer process started")
}

// drop forgets the session if it is still current.
func (m *Manager) drop(s *session) {
	m.mu.Lock()
	if m.current == s {
		m.current = nil
	}
	m.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// restart discards the current handle so the next attempt starts fresh.
func (m *Manager) restart() {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()

	if s != nil {
		// Only tear down finished sessions; an in-flight start owns itself.
		select {
		case <-s.ready:
			if s.cancel != nil {
				s.cancel()
			}
		default:
		}
	}
	if m.onRestart != nil {
		m.onRestart()
	}
}

// Close tears the shared process down.
func (m *Manager) Close() {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()
	if s == nil {
		return
	}
	<-s.ready
	if s.cancel != nil {
		s.cancel()
	}
}

// transientMarkers identify process/session/protocol-connection failures
// worth a forced restart. Matching is by message content because the
// browser transport wraps errors without stable types.
var transientMarkers = []string{
	"chrome failed to start",
	"browser closed",
	"target closed",
	"session closed",
	"websocket",
	"connection reset",
	"connection refused",
	"broken pipe",
	"unexpected eof",
	"transport error",
	"protocol error",
	"renderer start failed",
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
