// Package config loads bua-teacher settings from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anxuanzi/bua-teacher/browser"
	"github.com/anxuanzi/bua-teacher/dom"
)

// DefaultExcludeID is the chat tree of the IDE, kept out of layouts so the
// agent never points the user at its own conversation.
const DefaultExcludeID = "chat-tree-widget-treeContainer"

// Config is the top-level configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Layout  LayoutConfig  `yaml:"layout"`
	Agent   AgentConfig   `yaml:"agent"`
	Server  ServerConfig  `yaml:"server"`
	Widget  WidgetConfig  `yaml:"widget"`
}

// BrowserConfig controls the browser lifecycle.
type BrowserConfig struct {
	ControlURL  string        `yaml:"control_url"`
	Bin         string        `yaml:"bin"`
	Headless    *bool         `yaml:"headless"`
	UserDataDir string        `yaml:"user_data_dir"`
	URL         string        `yaml:"url"`
	Match       string        `yaml:"match"` // attach to an open tab whose URL contains this
	Timeout     time.Duration `yaml:"timeout"`
	Stealth     StealthConfig `yaml:"stealth"`
}

// StealthConfig mirrors browser.StealthConfig.
type StealthConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	UserAgent string `yaml:"user_agent"`
	Locale    string `yaml:"locale"`
	Timezone  string `yaml:"timezone"`
}

// LayoutConfig controls extraction.
type LayoutConfig struct {
	ViewportExpansion int      `yaml:"viewport_expansion"`
	Highlight         bool     `yaml:"highlight"`
	FocusIndex        *int     `yaml:"focus_index"`
	OptOutClasses     []string `yaml:"opt_out_classes"`
	ExcludeIDs        []string `yaml:"exclude_ids"`
}

// AgentConfig controls the chat agent.
type AgentConfig struct {
	Model       string   `yaml:"model"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	Temperature *float32 `yaml:"temperature"`
}

// ServerConfig controls the tool server.
type ServerConfig struct {
	Transport string `yaml:"transport"` // stdio | streamable-http | http
	Addr      string `yaml:"addr"`
}

// WidgetConfig holds the shell selector formats, each with one %s for the widget id.
type WidgetConfig struct {
	TabSelectorFormat  string `yaml:"tab_selector_format"`
	NodeSelectorFormat string `yaml:"node_selector_format"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and fills in defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.Headless == nil {
		c.Browser.Headless = ptr(true)
	}
	if c.Browser.Timeout <= 0 {
		c.Browser.Timeout = 30 * time.Second
	}
	if c.Browser.Stealth.Enabled == nil {
		c.Browser.Stealth.Enabled = ptr(true)
	}
	if c.Browser.Stealth.Locale == "" {
		c.Browser.Stealth.Locale = "en-US"
	}
	if c.Layout.FocusIndex == nil {
		c.Layout.FocusIndex = ptr(-1)
	}
	if c.Layout.OptOutClasses == nil {
		c.Layout.OptOutClasses = []string{dom.DefaultOptOutClass}
	}
	if c.Layout.ExcludeIDs == nil {
		c.Layout.ExcludeIDs = []string{DefaultExcludeID}
	}
	if c.Agent.Model == "" {
		c.Agent.Model = "gemini-2.5-flash"
	}
	if c.Agent.APIKeyEnv == "" {
		c.Agent.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if c.Server.Transport == "" {
		c.Server.Transport = "stdio"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8931"
	}
	def := browser.DefaultWidgetSelectors()
	if c.Widget.TabSelectorFormat == "" {
		c.Widget.TabSelectorFormat = def.Tab
	}
	if c.Widget.NodeSelectorFormat == "" {
		c.Widget.NodeSelectorFormat = def.Node
	}
}

func (c *Config) validate() error {
	switch c.Server.Transport {
	case "stdio", "streamable-http", "http":
	default:
		return fmt.Errorf("unknown server transport %q", c.Server.Transport)
	}
	if c.Layout.ViewportExpansion < -1 {
		return fmt.Errorf("viewport_expansion must be -1 or more, got %d", c.Layout.ViewportExpansion)
	}
	return nil
}

// BrowserConfig converts the browser section.
func (c *Config) BrowserConfig() browser.Config {
	cfg := browser.DefaultConfig()
	cfg.ControlURL = c.Browser.ControlURL
	cfg.Bin = c.Browser.Bin
	cfg.Headless = *c.Browser.Headless
	cfg.UserDataDir = c.Browser.UserDataDir
	cfg.Timeout = c.Browser.Timeout
	cfg.Stealth = browser.StealthConfig{
		Enabled:   *c.Browser.Stealth.Enabled,
		UserAgent: c.Browser.Stealth.UserAgent,
		Locale:    c.Browser.Stealth.Locale,
		Timezone:  c.Browser.Stealth.Timezone,
	}
	return cfg
}

// Options converts the layout section to extraction options.
func (c *Config) Options() dom.Options {
	opts := dom.DefaultOptions()
	opts.DoHighlightElements = c.Layout.Highlight
	opts.FocusHighlightIndex = *c.Layout.FocusIndex
	opts.ViewportExpansion = c.Layout.ViewportExpansion
	opts.OptOutClasses = c.Layout.OptOutClasses
	opts.ExcludeIDs = c.Layout.ExcludeIDs
	return opts
}

// WidgetSelectors converts the widget section.
func (c *Config) WidgetSelectors() browser.WidgetSelectors {
	return browser.WidgetSelectors{Tab: c.Widget.TabSelectorFormat, Node: c.Widget.NodeSelectorFormat}
}

func ptr[T any](v T) *T { return &v }
