package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chromedp/chromedp"

	"HSEWrapped/internal/config"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ErrClosed is returned by Acquire once the pool has been closed.
var ErrClosed = errors.New("browser pool is closed")

// Tab is one checked-out browser tab. It must be handed back with Release.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	broken bool
}

// MarkBroken makes Release discard the tab instead of reusing it.
func (t *Tab) MarkBroken() { t.broken = true }

// Pool owns one lazily started browser process and hands out at most size
// tabs at a time.
type Pool struct {
	cfg    config.BrowserConfig
	logger *slog.Logger

	slots chan struct{}
	idle  chan *Tab

	mu            sync.Mutex
	started       bool
	closed        bool
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// newTab is replaced in tests to avoid launching a browser.
	newTab func() (*Tab, error)
}

// NewPool creates an idle pool; the browser starts on the first Acquire.
func NewPool(cfg config.BrowserConfig, size int, log *slog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		cfg:    cfg,
		logger: log,
		slots:  make(chan struct{}, size),
		idle:   make(chan *Tab, size),
	}
	p.newTab = p.openTab
	return p
}

// Acquire checks out a tab, blocking while all tabs are in use.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if p.isClosed() {
		<-p.slots
		return nil, ErrClosed
	}

	select {
	case tab := <-p.idle:
		if tab.ctx.Err() == nil {
			return tab, nil
		}
		tab.cancel()
	default:
	}

	tab, err := p.newTab()
	if err != nil {
		<-p.slots
		return nil, err
	}
	return tab, nil
}

// Release returns tab to the pool. Broken tabs are closed.
func (p *Pool) Release(tab *Tab) {
	if tab == nil {
		return
	}
	defer func() { <-p.slots }()

	if tab.broken || tab.ctx.Err() != nil || p.isClosed() {
		tab.cancel()
		return
	}
	select {
	case p.idle <- tab:
	default:
		tab.cancel()
	}
}

// Run executes actions in a pooled tab. Cancelling ctx aborts the actions and
// discards the tab.
func (p *Pool) Run(ctx context.Context, actions ...chromedp.Action) error {
	tab, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(tab)

	runCtx, cancel := context.WithCancel(tab.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		tab.MarkBroken()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Close shuts down every idle tab and the browser process.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

drain:
	for {
		select {
		case tab := <-p.idle:
			tab.cancel()
		default:
			break drain
		}
	}

	if p.started {
		p.browserCancel()
		p.allocCancel()
		p.debug("browser stopped")
	}
	return nil
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) openTab() (*Tab, error) {
	browserCtx, err := p.ensureBrowser()
	if err != nil {
		return nil, err
	}

	ctx, cancel := chromedp.NewContext(browserCtx)
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &Tab{ctx: ctx, cancel: cancel}, nil
}

func (p *Pool) ensureBrowser() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if p.started {
		return p.browserCtx, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	if p.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(p.cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	p.allocCancel = allocCancel
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	p.started = true
	p.debug("browser started", "headless", p.cfg.Headless)
	return browserCtx, nil
}

func (p *Pool) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
