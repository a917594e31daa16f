package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anxuanzi/bua-teacher/dom"
	"github.com/anxuanzi/bua-teacher/htmldoc"
)

func newLayoutCmd(a *app) *cobra.Command {
	var attrs bool
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print the interactive elements of the page",
		Long: `Extracts the page and prints every interactive element with its highlight
index, tag name, attributes and text. The indices are the ones "highlight"
accepts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer t.Close()

			l, err := t.Layout(cmd.Context())
			if err != nil {
				return err
			}
			if attrs {
				l.WithUniqueAttributes()
			}
			return a.print(cmd.OutOrStdout(), l)
		},
	}
	cmd.Flags().BoolVar(&attrs, "attributes", false, "Include the set of attribute names seen")
	return cmd
}

func newSnapshotCmd(a *app) *cobra.Command {
	var tree bool
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the raw snapshot of the page",
		Long: `Extracts the page with the layout options of the configuration and prints
the flat node map, or the rebuilt element tree with --tree.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer t.Close()

			svc, err := t.Service()
			if err != nil {
				return err
			}
			st, err := svc.ClickableElements(cmd.Context(), a.cfg.Options())
			if err != nil {
				return err
			}
			return a.printState(cmd, st, tree)
		},
	}
	cmd.Flags().BoolVar(&tree, "tree", false, "Print the element tree instead of the node map")
	return cmd
}

func newDumpCmd(a *app) *cobra.Command {
	var (
		tree   bool
		width  float64
		height float64
	)
	cmd := &cobra.Command{
		Use:   "dump <file.html>",
		Short: "Extract a static HTML file without a browser",
		Long: `Parses an HTML file and runs the extraction over it. Geometry comes from
inline left, top, width and height declarations, so the result only
approximates a rendered page.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			doc, err := htmldoc.Parse(f, htmldoc.WithViewport(width, height))
			if err != nil {
				return err
			}
			svc := dom.NewService(doc,
				dom.WithLogger(a.logger.Named("dom")),
				dom.WithOptOutClasses(a.cfg.Layout.OptOutClasses...),
				dom.WithExcludeIDs(a.cfg.Layout.ExcludeIDs...),
			)

			opts := a.cfg.Options()
			opts.DoHighlightElements = false
			st, err := svc.ClickableElements(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if tree || a.format == "text" {
				return a.printState(cmd, st, tree)
			}
			return a.print(cmd.OutOrStdout(), dom.NewLayout(st.SelectorMap))
		},
	}
	cmd.Flags().BoolVar(&tree, "tree", false, "Print the element tree")
	cmd.Flags().Float64Var(&width, "width", 1280, "Viewport width")
	cmd.Flags().Float64Var(&height, "height", 720, "Viewport height")
	return cmd
}

func (a *app) printState(cmd *cobra.Command, st *dom.State, tree bool) error {
	if !tree {
		if a.format == "text" {
			return a.print(cmd.OutOrStdout(), dom.NewLayout(st.SelectorMap))
		}
		return a.print(cmd.OutOrStdout(), st.Snapshot)
	}
	if a.format == "text" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), st.ElementTree.String())
		return err
	}
	out, err := st.ElementTree.ClickableElementsToString(dom.AllAttributes)
	if err != nil {
		return err
	}
	return a.print(cmd.OutOrStdout(), out)
}
