package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/quantbench/internal/core"
	"go.uber.org/zap"
)

// Engine holds the named generator factories
type Engine struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *zap.Logger
}

// NewEngine creates a new strategy engine
func NewEngine(logger ...*zap.Logger) *Engine {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Engine{
		factories: make(map[string]Factory),
		logger:    l,
	}
}

// Register adds a generator factory under name
func (e *Engine) Register(name string, f Factory) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.factories[name] = f
}

// Names returns the registered strategy names, sorted
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.factories))
	for name := range e.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates the named generator
func (e *Engine) Build(name string, params Params) (Generator, error) {
	e.mu.RLock()
	f, ok := e.factories[name]
	e.mu.RUnlock()
	if !ok {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown strategy %q (have %v)", name, e.Names()))
	}

	g, err := f(params)
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidInput, err)
	}
	return g, nil
}

// Generate builds the named generator and runs it over prices
func (e *Engine) Generate(ctx context.Context, name string, params Params, prices []core.PriceBar) ([]core.SignalBar, error) {
	if len(prices) == 0 {
		return nil, core.ErrNoData
	}

	g, err := e.Build(name, params)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	signals, err := g.Generate(prices)
	if err != nil {
		return nil, core.WrapError(core.ErrSignalData, err)
	}

	var buys, sells int
	for _, s := range signals {
		if s.Buy {
			buys++
		}
		if s.Sell {
			sells++
		}
	}
	e.logger.Debug("signals generated",
		zap.String("strategy", g.Description()),
		zap.Int("bars", len(signals)),
		zap.Int("buys", buys),
		zap.Int("sells", sells),
	)

	return signals, nil
}
