// Package teacher guides a user through a browser-hosted IDE. It extracts the
// interactive layout of the page, and an AI agent pulses the element the user
// should click next instead of clicking it.
package teacher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/anxuanzi/bua-teacher/agent"
	"github.com/anxuanzi/bua-teacher/browser"
	"github.com/anxuanzi/bua-teacher/config"
	"github.com/anxuanzi/bua-teacher/dom"
	"github.com/anxuanzi/bua-teacher/guide"
)

// Model identifiers.
const (
	ModelGemini25Flash = "gemini-2.5-flash"
	ModelGemini25Pro   = "gemini-2.5-pro"
)

// DefaultSession is the chat session used by Chat.
const DefaultSession = "default"

// ErrNotStarted is returned when a page operation runs before Navigate or Attach.
var ErrNotStarted = errors.New("teacher: no page, call Navigate or Attach first")

// Config configures a Teacher.
type Config struct {
	// APIKey is the Gemini API key. Empty reads GOOGLE_API_KEY.
	APIKey string

	// Model is the agent model ID.
	Model string

	// Browser configures the browser connection.
	Browser browser.Config

	// Highlight draws the index overlay on every extraction.
	Highlight bool

	// OptOutClasses and ExcludeIDs mark subtrees that are never captured.
	OptOutClasses []string
	ExcludeIDs    []string

	// Widgets holds the shell selector formats.
	Widgets browser.WidgetSelectors

	// Debug enables development logging when Logger is nil.
	Debug bool

	Logger *zap.Logger
}

// DefaultConfig returns a configuration for a visible local browser.
func DefaultConfig() Config {
	bc := browser.DefaultConfig()
	bc.Headless = false
	return Config{
		Model:         ModelGemini25Flash,
		Browser:       bc,
		OptOutClasses: []string{dom.DefaultOptOutClass},
		ExcludeIDs:    []string{config.DefaultExcludeID},
		Widgets:       browser.DefaultWidgetSelectors(),
	}
}

// FromFile converts a loaded configuration file.
func FromFile(c *config.Config) Config {
	return Config{
		APIKey:        os.Getenv(c.Agent.APIKeyEnv),
		Model:         c.Agent.Model,
		Browser:       c.BrowserConfig(),
		Highlight:     c.Layout.Highlight,
		OptOutClasses: c.Layout.OptOutClasses,
		ExcludeIDs:    c.Layout.ExcludeIDs,
		Widgets:       c.WidgetSelectors(),
	}
}

// Teacher owns a browser, the page being taught and the agent.
type Teacher struct {
	cfg Config
	log *zap.Logger

	browser *browser.Browser

	mu      sync.Mutex
	tab     *browser.Tab
	svc     *dom.Service
	guide   *guide.Guide
	agent   *agent.Teacher
	untrack context.CancelFunc

	initMu sync.Mutex
}

// New creates a Teacher. Call Start before Navigate or Attach.
func New(cfg Config) (*Teacher, error) {
	if cfg.Model == "" {
		cfg.Model = ModelGemini25Flash
	}
	if cfg.Widgets == (browser.WidgetSelectors{}) {
		cfg.Widgets = browser.DefaultWidgetSelectors()
	}

	logger := cfg.Logger
	if logger == nil {
		var err error
		if cfg.Debug {
			logger, err = zap.NewDevelopment()
		} else {
			logger = zap.NewNop()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}
	cfg.Browser.Logger = logger.Named("browser")

	return &Teacher{
		cfg:     cfg,
		log:     logger,
		browser: browser.New(cfg.Browser),
	}, nil
}

// Start launches or connects to the browser.
func (t *Teacher) Start(ctx context.Context) error {
	if err := t.browser.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	return nil
}

// Navigate loads pageURL, opening the tab on first use.
func (t *Teacher) Navigate(ctx context.Context, pageURL string) error {
	t.mu.Lock()
	tab := t.tab
	t.mu.Unlock()

	if tab != nil {
		return tab.Navigate(ctx, pageURL)
	}
	tab, err := t.browser.OpenTab(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("failed to open tab: %w", err)
	}
	return t.use(ctx, tab)
}

// Attach adopts an open tab whose URL contains match.
func (t *Teacher) Attach(ctx context.Context, match string) error {
	tab, err := t.browser.AttachTab(ctx, match)
	if err != nil {
		return fmt.Errorf("failed to attach tab: %w", err)
	}
	return t.use(ctx, tab)
}

// use wires the service, guide and agent to tab.
func (t *Teacher) use(ctx context.Context, tab *browser.Tab) error {
	svcOpts := []dom.ServiceOption{
		dom.WithLogger(t.log.Named("dom")),
		dom.WithOptOutClasses(t.cfg.OptOutClasses...),
		dom.WithExcludeIDs(t.cfg.ExcludeIDs...),
	}
	if t.cfg.Highlight {
		svcOpts = append(svcOpts, dom.WithHighlighter(tab.Overlay()))
	}
	svc := dom.NewService(tab, svcOpts...)
	g := guide.New(svc, tab.Pulser(),
		guide.WithWidgetSelectors(t.cfg.Widgets),
		guide.WithLogger(t.log.Named("guide")),
	)
	a := agent.New(agent.Config{
		APIKey:          t.cfg.APIKey,
		Model:           t.cfg.Model,
		Temperature:     agent.DefaultConfig().Temperature,
		MaxOutputTokens: agent.DefaultConfig().MaxOutputTokens,
	}, g, t.log.Named("agent"))

	trackCtx, untrack := context.WithCancel(context.WithoutCancel(ctx))
	if err := tab.TrackMutations(trackCtx); err != nil {
		t.log.Warn("mutation tracking unavailable", zap.Error(err))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.untrack != nil {
		t.untrack()
	}
	t.tab, t.svc, t.guide, t.agent, t.untrack = tab, svc, g, a, untrack
	return nil
}

// Tab returns the current tab, or nil before Navigate or Attach.
func (t *Teacher) Tab() *browser.Tab {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tab
}

// Service returns the extraction service of the current tab.
func (t *Teacher) Service() (*dom.Service, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.svc == nil {
		return nil, ErrNotStarted
	}
	return t.svc, nil
}

// Guide returns the guide of the current tab.
func (t *Teacher) Guide() (*guide.Guide, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.guide == nil {
		return nil, ErrNotStarted
	}
	return t.guide, nil
}

// Layout extracts the interactive layout of the current tab.
func (t *Teacher) Layout(ctx context.Context) (*dom.Layout, error) {
	g, err := t.Guide()
	if err != nil {
		return nil, err
	}
	return g.Layout(ctx)
}

// Chat sends one user message to the agent in the default session. The agent
// is initialized on first use.
func (t *Teacher) Chat(ctx context.Context, message string) (string, error) {
	t.mu.Lock()
	a := t.agent
	t.mu.Unlock()
	if a == nil {
		return "", ErrNotStarted
	}

	t.initMu.Lock()
	if a.Agent() == nil {
		if err := a.Init(ctx); err != nil {
			t.initMu.Unlock()
			return "", fmt.Errorf("failed to initialize agent: %w", err)
		}
	}
	t.initMu.Unlock()
	return a.Chat(ctx, DefaultSession, message)
}

// Close stops mutation tracking and shuts the browser down.
func (t *Teacher) Close() error {
	t.mu.Lock()
	if t.untrack != nil {
		t.untrack()
		t.untrack = nil
	}
	t.tab, t.svc, t.guide, t.agent = nil, nil, nil, nil
	t.mu.Unlock()

	err := t.browser.Close()
	_ = t.log.Sync()
	return err
}
