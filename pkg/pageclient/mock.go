package pageclient

import (
	"context"
	"sync"

	"runwayscraper/pkg/errors"
)

// Mock is a scriptable PageClient for tests. Unset functions return a
// NotFoundError so a test exercising one fetch path does not have to stub
// the others.
type Mock struct {
	SeasonsFunc   func(ctx context.Context) ([]SeasonRef, error)
	DesignersFunc func(ctx context.Context, seasonURL string) ([]DesignerRef, error)
	LooksFunc     func(ctx context.Context, designerURL string) (*Gallery, error)

	CloseErr error

	mu     sync.Mutex
	calls  map[string]int
	closed bool
}

// Calls returns how many times the named method ran.
func (m *Mock) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Closed reports whether Close has been called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
	m.mu.Unlock()
}

func (m *Mock) FetchSeasons(ctx context.Context) ([]SeasonRef, error) {
	m.record("FetchSeasons")
	if m.SeasonsFunc == nil {
		return nil, errors.NotFound("no seasons stubbed")
	}
	return m.SeasonsFunc(ctx)
}

func (m *Mock) FetchDesigners(ctx context.Context, seasonURL string) ([]DesignerRef, error) {
	m.record("FetchDesigners")
	if m.DesignersFunc == nil {
		return nil, errors.NotFound("no designers stubbed for %s", seasonURL)
	}
	return m.DesignersFunc(ctx, seasonURL)
}

func (m *Mock) FetchLooks(ctx context.Context, designerURL string) (*Gallery, error) {
	m.record("FetchLooks")
	if m.LooksFunc == nil {
		return nil, errors.NotFound("no looks stubbed for %s", designerURL)
	}
	return m.LooksFunc(ctx, designerURL)
}

func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.CloseErr
}
