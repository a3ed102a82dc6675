package engine

import "fmt"

// ConfigError marks a configuration mistake caught at build/finalize time:
// bad namespace, k too large for scratch, unknown optimizer, a graph cycle.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("ffml: config error: %s", e.Msg) }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// NumericGuardError records a NaN or out-of-range value caught in the
// forward pass. It is never returned to the caller as a hard failure — the
// engine clamps and continues — but blocks log it through this type so
// callers that want strict behavior can type-assert for it.
type NumericGuardError struct {
	Block string
	Value float32
}

func (e *NumericGuardError) Error() string {
	return fmt.Sprintf("ffml: numeric guard tripped in %s: value=%v", e.Block, e.Value)
}
