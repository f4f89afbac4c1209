package logging

import (
	"sort"

	"go.uber.org/zap/zapcore"
)

// newSampledCore wraps core with level-aware sampling. Each configured level
// below Error gets its own sampler; unconfigured levels pass through.
// Error and above are never sampled.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	cores := []zapcore.Core{
		&levelFilterCore{Core: core, enabled: func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel }},
	}

	sampled := make([]zapcore.Level, 0, len(cfg.Levels))
	for lvl := range cfg.Levels {
		if lvl < zapcore.ErrorLevel {
			sampled = append(sampled, lvl)
		}
	}
	sort.Slice(sampled, func(i, j int) bool { return sampled[i] < sampled[j] })

	for _, lvl := range sampled {
		rate := cfg.Levels[lvl]
		only := &levelFilterCore{Core: core, enabled: exactly(lvl)}
		cores = append(cores, zapcore.NewSamplerWithOptions(only, cfg.Tick, rate.First, rate.Thereafter))
	}

	cores = append(cores, &levelFilterCore{Core: core, enabled: func(l zapcore.Level) bool {
		if l >= zapcore.ErrorLevel {
			return false
		}
		_, ok := cfg.Levels[l]
		return !ok
	}})

	return zapcore.NewTee(cores...)
}

func exactly(lvl zapcore.Level) func(zapcore.Level) bool {
	return func(l zapcore.Level) bool { return l == lvl }
}

// levelFilterCore restricts the wrapped core to the levels accepted by
// enabled.
type levelFilterCore struct {
	zapcore.Core
	enabled func(zapcore.Level) bool
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return c.enabled(lvl) && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

// With creates a child logger that preserves level filtering.
func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{
		Core:    c.Core.With(fields),
		enabled: c.enabled,
	}
}
