// Package agent provides the ADK-based teacher agent. It guides the user
// through the IDE by highlighting elements instead of clicking them.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/anxuanzi/bua-teacher/guide"
)

const (
	appName = "bua-teacher"
	userID  = "user"
)

// Config holds agent configuration.
type Config struct {
	// APIKey is the Gemini API key. Empty reads GOOGLE_API_KEY.
	APIKey string

	// Model is the model ID to use.
	Model string

	// Temperature of the model. Nil keeps the model default.
	Temperature *float32

	// MaxOutputTokens bounds each model response.
	MaxOutputTokens int32
}

// DefaultConfig returns the default agent configuration.
func DefaultConfig() Config {
	return Config{
		Model:           "gemini-2.5-flash",
		Temperature:     genai.Ptr[float32](0.2),
		MaxOutputTokens: 8192,
	}
}

// Teacher wraps an ADK agent with the guide tools.
type Teacher struct {
	config Config
	guide  *guide.Guide
	log    *zap.Logger

	adkAgent agent.Agent
	runner   *runner.Runner
	sessions session.Service

	mu      sync.Mutex
	created map[string]bool
}

// New creates a teacher agent. Call Init before use.
func New(cfg Config, g *guide.Guide, logger *zap.Logger) *Teacher {
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Teacher{
		config:  cfg,
		guide:   g,
		log:     logger,
		created: make(map[string]bool),
	}
}

// Init creates the model, the tools, the ADK agent and its runner.
func (t *Teacher) Init(ctx context.Context) error {
	apiKey := t.config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return errors.New("no Gemini API key: set GOOGLE_API_KEY")
	}

	model, err := gemini.NewModel(ctx, t.config.Model, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create Gemini model: %w", err)
	}

	tools, err := Tools(t.guide, t.log)
	if err != nil {
		return fmt.Errorf("failed to create teacher tools: %w", err)
	}

	gen := &genai.GenerateContentConfig{
		Temperature:     t.config.Temperature,
		MaxOutputTokens: t.config.MaxOutputTokens,
	}
	adkAgent, err := llmagent.New(llmagent.Config{
		Name:                  "teacher_agent",
		Model:                 model,
		Description:           "Guides the user through the IDE by highlighting the elements to interact with.",
		Instruction:           SystemPrompt(),
		Tools:                 tools,
		GenerateContentConfig: gen,
	})
	if err != nil {
		return fmt.Errorf("failed to create ADK agent: %w", err)
	}
	t.adkAgent = adkAgent

	t.sessions = session.InMemoryService()
	t.runner, err = runner.New(runner.Config{
		AppName:        appName,
		Agent:          adkAgent,
		SessionService: t.sessions,
	})
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}
	return nil
}

// Agent returns the ADK agent, nil before Init.
func (t *Teacher) Agent() agent.Agent { return t.adkAgent }

// Chat sends one user message in a session and returns the agent's text reply.
// Tool calls, including highlights that wait for a click, run inside it.
func (t *Teacher) Chat(ctx context.Context, sessionID, message string) (string, error) {
	if t.runner == nil {
		return "", errors.New("agent not initialized")
	}
	if err := t.ensureSession(ctx, sessionID); err != nil {
		return "", err
	}

	var reply strings.Builder
	msg := genai.NewContentFromText(message, genai.RoleUser)
	for ev, err := range t.runner.Run(ctx, userID, sessionID, msg, agent.RunConfig{}) {
		if err != nil {
			return "", fmt.Errorf("failed to run agent: %w", err)
		}
		if ev == nil || ev.Content == nil || ev.Partial {
			continue
		}
		for _, part := range ev.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				t.log.Debug("tool call", zap.String("tool", part.FunctionCall.Name))
			case part.Text != "" && !part.Thought:
				reply.WriteString(part.Text)
			}
		}
	}
	return strings.TrimSpace(reply.String()), nil
}

func (t *Teacher) ensureSession(ctx context.Context, sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.created[sessionID] {
		return nil
	}
	_, err := t.sessions.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	t.created[sessionID] = true
	return nil
}
