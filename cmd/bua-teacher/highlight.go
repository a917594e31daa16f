package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/anxuanzi/bua-teacher/guide"
)

func newHighlightCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "highlight <index>",
		Short: "Pulse an element by highlight index until it is clicked",
		Long: `Extracts the layout, then pulses the element with the given highlight
index and waits for the user to click it. Run "layout" first to see the
indices; the page must not change in between.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[0], err)
			}

			t, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer t.Close()

			g, err := t.Guide()
			if err != nil {
				return err
			}
			if _, err := g.Layout(cmd.Context()); err != nil {
				return err
			}
			res, err := g.HighlightByIndex(cmd.Context(), index)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), res)
		},
	}
}

func newWidgetCmd(a *app) *cobra.Command {
	var (
		id, name, css string
		stop, wait    bool
	)
	cmd := &cobra.Command{
		Use:   "widget <factoryId>",
		Short: "Pulse the tab of a widget, or an element inside it",
		Long: `Pulses the title tab of the widget created by factoryId. With --css the
first match inside the widget pulses instead. The pulse ends when the widget
becomes current or the target is clicked.

Examples:
  bua-teacher widget terminal --name bash
  bua-teacher widget scm-view --css ".scm-commit-button"
  bua-teacher widget terminal --name bash --stop`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := widgetOptions(id, name)

			t, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			g, err := t.Guide()
			if err != nil {
				return err
			}
			if stop {
				return g.StopWidget(ctx, args[0], opts)
			}

			var res *guide.Result
			if css != "" {
				res, err = g.HighlightElement(ctx, args[0], opts, css)
			} else {
				res, err = g.HighlightWidget(ctx, args[0], opts)
			}
			if err != nil {
				return err
			}
			if wait && css == "" {
				if err := waitWidget(ctx, g, args[0], opts); err != nil {
					return err
				}
			}
			return a.print(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Widget id option")
	cmd.Flags().StringVar(&name, "name", "", "Widget name option")
	cmd.Flags().StringVar(&css, "css", "", "CSS selector of an element inside the widget")
	cmd.Flags().BoolVar(&stop, "stop", false, "Stop the pulse instead of starting it")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the widget tab stops pulsing")
	return cmd
}

func widgetOptions(id, name string) map[string]any {
	opts := make(map[string]any)
	if id != "" {
		opts["id"] = id
	}
	if name != "" {
		opts["name"] = name
	}
	return opts
}

// waitWidget polls the widget tab until its pulse ends.
func waitWidget(ctx context.Context, g *guide.Guide, factoryID string, opts map[string]any) error {
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		on, err := g.WidgetHighlighted(ctx, factoryID, opts)
		if err != nil {
			return err
		}
		if !on {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}
