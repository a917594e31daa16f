// Command bua-teacher inspects a browser-hosted IDE and guides its user by
// pulsing the elements to click.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/anxuanzi/bua-teacher/config"
)

// app holds the state shared by every command.
type app struct {
	configPath string
	debug      bool
	format     string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "bua-teacher",
		Short: "Guide a user through a browser-hosted IDE",
		Long: `bua-teacher extracts the interactive layout of a Chromium page over the
DevTools protocol, and pulses the element or widget the user should click next.

It can run one-shot commands, serve the guide tools over MCP or HTTP, or chat
with a Gemini agent that uses them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVarP(&a.format, "format", "f", "json", "Output format: json, yaml or text")

	root.AddCommand(
		newLayoutCmd(a),
		newSnapshotCmd(a),
		newDumpCmd(a),
		newHighlightCmd(a),
		newWidgetCmd(a),
		newScreenshotCmd(a),
		newServeCmd(a),
		newChatCmd(a),
	)
	return root
}

func (a *app) init() error {
	_ = godotenv.Load(".env")

	switch a.format {
	case "json", "yaml", "text":
	default:
		return fmt.Errorf("unsupported format: %s (use json, yaml or text)", a.format)
	}

	zc := zap.NewProductionConfig()
	if a.debug {
		zc = zap.NewDevelopmentConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger

	if a.configPath == "" {
		a.cfg = config.Default()
		return nil
	}
	a.cfg, err = config.LoadFile(a.configPath)
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
