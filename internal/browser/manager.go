// File: internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager owns the browser process lifecycle. Initialization is deferred
// until the first page is requested so commands that never touch a page
// (plan-only, config inspection) stay cheap.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCtx    context.Context
	allocCancel context.CancelFunc

	browserCtx    context.Context
	browserCancel context.CancelFunc

	initOnce sync.Once
	initErr  error
}

// NewManager creates a browser manager without starting a browser yet.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}
	m.logger.Debug("Browser manager created (initialization deferred).")
	return m
}

// initialize launches the browser exactly once.
func (m *Manager) initialize() error {
	m.initOnce.Do(func() {
		m.logger.Info("Launching browser...", zap.Bool("headless", m.cfg.Headless))

		opts := m.allocatorOptions()
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocCtx)

		// Force the browser process to start now so launch failures surface
		// here instead of on the first action.
		if err := chromedp.Run(m.browserCtx); err != nil {
			m.initErr = fmt.Errorf("failed to launch browser: %w", err)
			m.browserCancel()
			m.allocCancel()
			return
		}
		m.logger.Info("Browser launched.")
	})
	return m.initErr
}

func (m *Manager) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", m.cfg.Headless),
		// Containers routinely lack the privileges the sandbox needs.
		chromedp.NoSandbox,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if m.cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if m.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(m.cfg.UserAgent))
	}
	for _, arg := range m.cfg.Args {
		opts = append(opts, chromedp.Flag(trimFlag(arg), true))
	}
	return opts
}

func trimFlag(arg string) string {
	for len(arg) > 0 && arg[0] == '-' {
		arg = arg[1:]
	}
	return arg
}

// NewBackend attaches a fresh tab and returns the page backend driving it.
func (m *Manager) NewBackend() (*Backend, error) {
	if err := m.initialize(); err != nil {
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	backend := &Backend{
		logger:     m.logger.Named("page_backend"),
		cfg:        m.cfg,
		browserCtx: m.browserCtx,
		tabCtx:     tabCtx,
		tabCancel:  tabCancel,
	}
	backend.autoDismissDialogs(tabCtx)
	return backend, nil
}

// Shutdown tears the browser down, honoring the context deadline before
// falling back to the hard grace period.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.browserCancel == nil {
		m.logger.Debug("Manager never initialized, nothing to shut down.")
		return nil
	}
	m.logger.Info("Shutting down browser.")

	done := make(chan struct{})
	go func() {
		m.browserCancel()
		m.allocCancel()
		close(done)
	}()

	grace := time.NewTimer(shutdownGracePeriod)
	defer grace.Stop()

	select {
	case <-done:
		m.logger.Info("Browser shutdown complete.")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser shutdown interrupted: %w", ctx.Err())
	case <-grace.C:
		return fmt.Errorf("browser did not exit within %s", shutdownGracePeriod)
	}
}
