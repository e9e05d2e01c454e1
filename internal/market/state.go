package market

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/kalshi-collector/internal/model"
)

// registryState holds the in-memory view of instruments.
type registryState struct {
	mu          sync.RWMutex
	instruments map[string]model.Instrument
	activeSet   map[string]struct{}
	refreshed   map[string]time.Time
}

func newState() *registryState {
	return &registryState{
		instruments: make(map[string]model.Instrument),
		activeSet:   make(map[string]struct{}),
		refreshed:   make(map[string]time.Time),
	}
}

// apply stores inst and keeps the active set in step with its status.
// It returns the previous status, or "" for a new instrument.
func (s *registryState) apply(inst model.Instrument) model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(inst)
}

func (s *registryState) applyLocked(inst model.Instrument) model.Status {
	prev := s.instruments[inst.Ticker].Status
	s.instruments[inst.Ticker] = inst

	if inst.IsActive() {
		s.activeSet[inst.Ticker] = struct{}{}
	} else {
		delete(s.activeSet, inst.Ticker)
	}
	return prev
}

func (s *registryState) get(ticker string) (model.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instruments[ticker]
	return inst, ok
}

func (s *registryState) activeTickers() []string {
	s.mu.RLock()
	tickers := make([]string, 0, len(s.activeSet))
	for t := range s.activeSet {
		tickers = append(tickers, t)
	}
	s.mu.RUnlock()

	slices.Sort(tickers)
	return tickers
}

func (s *registryState) active() []model.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Instrument, 0, len(s.activeSet))
	for t := range s.activeSet {
		out = append(out, s.instruments[t])
	}
	slices.SortFunc(out, func(a, b model.Instrument) int {
		return strings.Compare(a.Ticker, b.Ticker)
	})
	return out
}

func (s *registryState) all() []model.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Instrument, 0, len(s.instruments))
	for _, inst := range s.instruments {
		out = append(out, inst)
	}
	slices.SortFunc(out, func(a, b model.Instrument) int {
		return strings.Compare(a.Ticker, b.Ticker)
	})
	return out
}

func (s *registryState) recordRefresh(ticker string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshed[ticker] = at
}

func (s *registryState) lastRefresh(ticker string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.refreshed[ticker]
	return at, ok
}

func (s *registryState) counts() (total, active int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instruments), len(s.activeSet)
}
