package teacher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/anxuanzi/bua-teacher/browser"
	"github.com/anxuanzi/bua-teacher/config"
)

func TestNewDefaults(t *testing.T) {
	tr, err := New(Config{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	assert.Equal(t, ModelGemini25Flash, tr.cfg.Model)
	assert.Equal(t, browser.DefaultWidgetSelectors(), tr.cfg.Widgets)
	assert.NotNil(t, tr.cfg.Browser.Logger)
}

func TestNotStarted(t *testing.T) {
	tr, err := New(DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = tr.Layout(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = tr.Guide()
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = tr.Service()
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = tr.Chat(ctx, "how do I open a terminal?")
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Nil(t, tr.Tab())

	err = tr.Navigate(ctx, "http://localhost:3000")
	assert.ErrorIs(t, err, browser.ErrNotStarted)
	err = tr.Attach(ctx, "localhost")
	assert.ErrorIs(t, err, browser.ErrNotStarted)

	assert.NoError(t, tr.Close())
}

func TestFromFile(t *testing.T) {
	t.Setenv("TEACHER_KEY", "secret")
	c, err := config.Parse([]byte(`
browser:
  headless: false
  control_url: ws://127.0.0.1:9222/devtools/browser/x
layout:
  highlight: true
  exclude_ids: [chat]
agent:
  model: gemini-2.5-pro
  api_key_env: TEACHER_KEY
widget:
  tab_selector_format: "#tab-%s"
`))
	require.NoError(t, err)

	cfg := FromFile(c)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, ModelGemini25Pro, cfg.Model)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/x", cfg.Browser.ControlURL)
	assert.True(t, cfg.Highlight)
	assert.Equal(t, []string{"chat"}, cfg.ExcludeIDs)
	assert.Equal(t, "#tab-%s", cfg.Widgets.Tab)
	assert.Equal(t, "#%s", cfg.Widgets.Node)
}
