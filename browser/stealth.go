package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
)

// StealthConfig configures anti-detection measures for new tabs.
type StealthConfig struct {
	// Enabled opens tabs through go-rod/stealth.
	Enabled bool

	// UserAgent overrides the browser user agent.
	UserAgent string

	// Locale is sent as Accept-Language with the user agent override (e.g., "en-US").
	Locale string

	// Timezone overrides the browser timezone (e.g., "America/New_York").
	Timezone string
}

// DefaultStealthConfig returns the stealth defaults.
func DefaultStealthConfig() StealthConfig {
	return StealthConfig{
		Enabled: true,
		Locale:  "en-US",
	}
}

// stealthLaunchFlags are Chrome switches applied to launched browsers.
var stealthLaunchFlags = map[flags.Flag]string{
	"disable-blink-features":                 "AutomationControlled",
	"disable-infobars":                       "",
	"disable-dev-shm-usage":                  "",
	"disable-renderer-backgrounding":         "",
	"disable-backgrounding-occluded-windows": "",
	"disable-background-timer-throttling":    "",
}

func applyLaunchFlags(l *launcher.Launcher, cfg StealthConfig) *launcher.Launcher {
	if !cfg.Enabled {
		return l
	}
	for name, value := range stealthLaunchFlags {
		if value == "" {
			l = l.Set(name)
			continue
		}
		l = l.Set(name, value)
	}
	return l
}

// newPage opens a blank tab, through go-rod/stealth when enabled.
func newPage(b *rod.Browser, cfg StealthConfig, log *zap.Logger) (*rod.Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if cfg.Enabled {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	if err := applyStealth(page, cfg, log); err != nil {
		_ = page.Close()
		return nil, err
	}
	return page, nil
}

// applyStealth applies the user agent and timezone overrides.
func applyStealth(page *rod.Page, cfg StealthConfig, log *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      cfg.UserAgent,
			AcceptLanguage: cfg.Locale,
		}); err != nil {
			return fmt.Errorf("browser: set user agent: %w", err)
		}
	}

	if cfg.Timezone != "" {
		err := proto.EmulationSetTimezoneOverride{TimezoneID: cfg.Timezone}.Call(page)
		if err != nil {
			log.Warn("timezone override failed", zap.String("timezone", cfg.Timezone), zap.Error(err))
		}
	}
	return nil
}
