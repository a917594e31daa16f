// Package browser drives a Chromium instance over the DevTools protocol and
// exposes its tabs as dom sources, overlays and pulse targets.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"go.uber.org/zap"
)

// Config configures the browser.
type Config struct {
	// ControlURL is the DevTools WebSocket URL of a running browser.
	// Empty launches a local one.
	ControlURL string

	// Bin is the browser binary. Empty lets the launcher find or download one.
	Bin string

	// Headless runs a launched browser without a window.
	Headless bool

	// UserDataDir keeps the launched browser's profile between runs.
	UserDataDir string

	// Stealth configures anti-detection for new tabs.
	Stealth StealthConfig

	// Timeout bounds each page script evaluation.
	Timeout time.Duration

	Logger *zap.Logger
}

// DefaultConfig returns the defaults for a launched headless browser.
func DefaultConfig() Config {
	return Config{
		Headless: true,
		Stealth:  DefaultStealthConfig(),
		Timeout:  30 * time.Second,
	}
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Browser owns one browser connection.
type Browser struct {
	cfg Config
	log *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	tabs    []*Tab
}

// New creates a Browser. Call Start to launch or connect.
func New(cfg Config) *Browser {
	cfg.defaults()
	return &Browser{cfg: cfg, log: cfg.Logger}
}

// Start launches the browser, or connects to ControlURL.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return nil
	}

	wsURL := b.cfg.ControlURL
	if wsURL == "" {
		l := launcher.New().Context(ctx).Headless(b.cfg.Headless)
		if b.cfg.Bin != "" {
			l = l.Bin(b.cfg.Bin)
		}
		if b.cfg.UserDataDir != "" {
			l = l.UserDataDir(b.cfg.UserDataDir)
		}
		l = applyLaunchFlags(l, b.cfg.Stealth)

		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		b.lnch = l
		b.log.Info("launched local browser", zap.String("url", wsURL), zap.Bool("headless", b.cfg.Headless))
	} else {
		b.log.Info("connecting to browser", zap.String("url", wsURL))
	}

	rb := rod.New().ControlURL(wsURL)
	if err := rb.Connect(); err != nil {
		b.cleanupLocked()
		return fmt.Errorf("browser: connect: %w", err)
	}
	b.browser = rb
	return nil
}

// OpenTab opens a new tab and navigates it to pageURL.
func (b *Browser) OpenTab(ctx context.Context, pageURL string) (*Tab, error) {
	rb, err := b.rod()
	if err != nil {
		return nil, err
	}

	page, err := newPage(rb, b.cfg.Stealth, b.log)
	if err != nil {
		return nil, err
	}

	t := NewTab(page, b.cfg.Timeout, b.log)
	if err := t.Navigate(ctx, pageURL); err != nil {
		_ = page.Close()
		return nil, err
	}
	b.adopt(t)
	return t, nil
}

// AttachTab adopts an open tab whose URL contains match. An empty match
// takes the first tab.
func (b *Browser) AttachTab(ctx context.Context, match string) (*Tab, error) {
	rb, err := b.rod()
	if err != nil {
		return nil, err
	}

	pages, err := rb.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("browser: list tabs: %w", err)
	}
	for _, page := range pages {
		info, err := page.Info()
		if err != nil {
			continue
		}
		if match == "" || strings.Contains(info.URL, match) {
			if err := applyStealth(page, b.cfg.Stealth, b.log); err != nil {
				return nil, err
			}
			b.log.Info("attached to tab", zap.String("url", info.URL))
			return b.track(page), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrTabNotFound, match)
}

// Close closes the tabs opened by this Browser and shuts a launched browser down.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.tabs {
		t.release()
	}
	b.tabs = nil
	return b.cleanupLocked()
}

func (b *Browser) rod() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil, ErrNotStarted
	}
	return b.browser, nil
}

func (b *Browser) track(page *rod.Page) *Tab {
	t := NewTab(page, b.cfg.Timeout, b.log)
	b.adopt(t)
	return t
}

func (b *Browser) adopt(t *Tab) {
	b.mu.Lock()
	b.tabs = append(b.tabs, t)
	b.mu.Unlock()
}

func (b *Browser) cleanupLocked() error {
	var err error
	if b.browser != nil && b.lnch != nil {
		err = b.browser.Close()
	}
	b.browser = nil
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return err
}
