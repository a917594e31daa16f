package main

import (
	"context"
	"fmt"

	"github.com/anxuanzi/bua-teacher"
)

// open starts the browser and opens the configured page: the url when set,
// otherwise the first open tab matching browser.match.
func (a *app) open(ctx context.Context) (*teacher.Teacher, error) {
	cfg := teacher.FromFile(a.cfg)
	cfg.Logger = a.logger

	t, err := teacher.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := t.Start(ctx); err != nil {
		return nil, err
	}

	if url := a.cfg.Browser.URL; url != "" {
		err = t.Navigate(ctx, url)
	} else {
		err = t.Attach(ctx, a.cfg.Browser.Match)
	}
	if err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return t, nil
}
