package dom

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the result of one extraction, kept as the last known layout.
type State struct {
	ID          string
	CapturedAt  time.Time
	Snapshot    *Snapshot
	ElementTree *ElementNode
	SelectorMap SelectorMap

	page      Page
	mutations int64
}

// MutationCounter is implemented by sources that can tell how much the
// document changed since it was captured.
type MutationCounter interface {
	Mutations() int64
}

// Service runs extractions against a Source and keeps the latest state.
// A new extraction replaces the previous state wholesale.
type Service struct {
	source      Source
	highlighter Highlighter
	log         *zap.Logger
	optOut      []string
	excludeIDs  []string

	// extractMu serializes extractions: a capture tags the page registry and
	// a concurrent one would invalidate it mid-walk.
	extractMu sync.Mutex

	mu    sync.RWMutex
	state *State
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHighlighter draws overlays through h.
func WithHighlighter(h Highlighter) ServiceOption {
	return func(s *Service) { s.highlighter = h }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

// WithOptOutClasses replaces the default opt-out classes.
func WithOptOutClasses(classes ...string) ServiceOption {
	return func(s *Service) { s.optOut = classes }
}

// WithExcludeIDs keeps elements with these ids out of every extraction.
func WithExcludeIDs(ids ...string) ServiceOption {
	return func(s *Service) { s.excludeIDs = ids }
}

// NewService creates a service over source.
func NewService(source Source, opts ...ServiceOption) *Service {
	s := &Service{
		source:      source,
		highlighter: nopHighlighter{},
		log:         zap.NewNop(),
		optOut:      []string{DefaultOptOutClass},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClickableElements captures the page, walks it and rebuilds the tree. On
// success the result becomes the last known state. Concurrent calls run one
// at a time.
func (s *Service) ClickableElements(ctx context.Context, opts Options) (*State, error) {
	if opts.OptOutClasses == nil {
		opts.OptOutClasses = s.optOut
	}
	opts.ExcludeIDs = append(append([]string(nil), opts.ExcludeIDs...), s.excludeIDs...)

	s.extractMu.Lock()
	defer s.extractMu.Unlock()

	page, err := s.source.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture page: %w", err)
	}

	snap, err := BuildDomTree(page, opts, s.highlighter, s.log)
	if err != nil {
		return nil, err
	}

	root, selectorMap, err := ConstructDomTree(snap)
	if err != nil {
		s.log.Error("failed to construct dom tree", zap.Error(err))
		return nil, fmt.Errorf("failed to construct dom tree: %w", err)
	}

	st := &State{
		ID:          uuid.NewString(),
		CapturedAt:  time.Now(),
		Snapshot:    snap,
		ElementTree: root,
		SelectorMap: selectorMap,
		page:        page,
	}
	if mc, ok := s.source.(MutationCounter); ok {
		st.mutations = mc.Mutations()
	}

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	s.log.Info("layout snapshot taken",
		zap.String("snapshot", st.ID),
		zap.Int("nodes", len(snap.Map)),
		zap.Int("interactive", len(selectorMap)),
	)
	return st, nil
}

// Layout extracts without overlays and returns the flat interactive layout.
func (s *Service) Layout(ctx context.Context) (*Layout, error) {
	st, err := s.ClickableElements(ctx, LayoutOptions())
	if err != nil {
		return nil, err
	}
	l := NewLayout(st.SelectorMap)
	l.SnapshotID = st.ID
	return l, nil
}

// LastState returns the latest state, or nil before the first extraction.
func (s *Service) LastState() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LayoutAge returns the number of DOM mutations observed since the latest
// snapshot. It is zero when the source does not count mutations.
func (s *Service) LayoutAge() (int64, error) {
	st := s.LastState()
	if st == nil {
		return 0, ErrNoSnapshot
	}
	mc, ok := s.source.(MutationCounter)
	if !ok {
		return 0, nil
	}
	return mc.Mutations() - st.mutations, nil
}

// LastSelectorMap returns the selector map of the latest state.
func (s *Service) LastSelectorMap() SelectorMap {
	if st := s.LastState(); st != nil {
		return st.SelectorMap
	}
	return nil
}

// Lookup returns the element of the latest snapshot with the given index.
func (s *Service) Lookup(index int) (*ElementNode, error) {
	_, el, err := s.lookup(index)
	return el, err
}

func (s *Service) lookup(index int) (*State, *ElementNode, error) {
	st := s.LastState()
	if st == nil {
		return nil, nil, ErrNoSnapshot
	}
	el, ok := st.SelectorMap[index]
	if !ok {
		return nil, nil, fmt.Errorf("element with highlightIndex %d not found, the layout tool needs to be rerun: %w", index, ErrStaleSelector)
	}
	return st, el, nil
}

// Resolve looks the index up and re-validates its locator against the live
// document. A locator that no longer resolves is a stale selector; it is never
// retried.
func (s *Service) Resolve(ctx context.Context, index int) (*ElementNode, error) {
	st, el, err := s.lookup(index)
	if err != nil {
		return nil, err
	}
	locator := strings.Join(append(slices.Clone(el.Hosts), el.XPath), " >> ")
	live, err := st.page.ResolveXPath(ctx, el.Hosts, el.XPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", locator, err)
	}
	if live == nil {
		return nil, fmt.Errorf("element with xpath %s not found, the layout tool needs to be rerun: %w", locator, ErrStaleSelector)
	}
	return el, nil
}
