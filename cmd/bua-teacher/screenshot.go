package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anxuanzi/bua-teacher/dom"
	"github.com/anxuanzi/bua-teacher/screenshot"
)

func newScreenshotCmd(a *app) *cobra.Command {
	var (
		out    string
		scale  float64
		labels bool
	)
	cmd := &cobra.Command{
		Use:   "screenshot",
		Short: "Save a screenshot with the interactive elements boxed and numbered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			t, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			cfg := screenshot.DefaultAnnotationConfig()
			cfg.Scale = scale
			cfg.ShowLabels = labels
			ann := screenshot.NewAnnotator(cfg)

			svc := dom.NewService(t.Tab(),
				dom.WithHighlighter(ann),
				dom.WithLogger(a.logger.Named("dom")),
				dom.WithExcludeIDs(a.cfg.Layout.ExcludeIDs...),
			)
			opts := a.cfg.Options()
			opts.DoHighlightElements = true
			st, err := svc.ClickableElements(ctx, opts)
			if err != nil {
				return err
			}

			img, err := t.Tab().Screenshot(ctx)
			if err != nil {
				return err
			}
			annotated, err := ann.Annotate(img)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, annotated, 0o644); err != nil {
				return fmt.Errorf("failed to write screenshot: %w", err)
			}
			a.logger.Info("screenshot saved",
				zap.String("path", out),
				zap.Int("elements", len(st.SelectorMap)),
			)
			return a.print(cmd.OutOrStdout(), dom.NewLayout(st.SelectorMap))
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "screenshot.png", "Output PNG file")
	cmd.Flags().Float64Var(&scale, "scale", 1, "Device pixel ratio of the capture")
	cmd.Flags().BoolVar(&labels, "labels", true, "Draw index labels")
	return cmd
}
