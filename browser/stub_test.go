package browser

import (
	"context"
	"errors"
	"sync"
)

type call struct {
	js   string
	args []any
}

// stubPage answers page scripts from canned functions.
type stubPage struct {
	mu    sync.Mutex
	calls []call

	hit       func(scope int, x, y float64) int
	resolve   func(hosts []string, xpath string) int
	listeners map[int][]string
	pulse     func(js string, args []any) (int, error)
	fail      error
}

func (s *stubPage) record(js string, args []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{js: js, args: args})
}

func (s *stubPage) callsTo(js string) []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []call
	for _, c := range s.calls {
		if c.js == js {
			out = append(out, c)
		}
	}
	return out
}

func (s *stubPage) evalString(_ context.Context, js string, args ...any) (string, error) {
	s.record(js, args)
	if s.fail != nil {
		return "", s.fail
	}
	return "", nil
}

func (s *stubPage) evalInt(_ context.Context, js string, args ...any) (int, error) {
	s.record(js, args)
	if s.fail != nil {
		return 0, s.fail
	}
	switch js {
	case hitTestJS:
		if s.hit == nil {
			return noNode, nil
		}
		return s.hit(args[1].(int), args[2].(float64), args[3].(float64)), nil
	case resolveJS:
		if s.resolve == nil {
			return noNode, nil
		}
		return s.resolve(args[1].([]string), args[2].(string)), nil
	default:
		if s.pulse == nil {
			return 1, nil
		}
		return s.pulse(js, args)
	}
}

func (s *stubPage) listenerTypes(_ context.Context, js string, args ...any) ([]string, error) {
	s.record(js, args)
	if s.fail != nil {
		return nil, s.fail
	}
	return s.listeners[args[1].(int)], nil
}

// stubBinder delivers binding payloads by hand.
type stubBinder struct {
	mu    sync.Mutex
	fn    func(string)
	binds int
	err   error
}

func (b *stubBinder) bind(ctx context.Context, _ string, fn func(string)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	b.fn = fn
	b.binds++
	return func() { <-ctx.Done() }, nil
}

func (b *stubBinder) deliver(payload string) error {
	b.mu.Lock()
	fn := b.fn
	b.mu.Unlock()
	if fn == nil {
		return errors.New("no binding")
	}
	fn(payload)
	return nil
}
