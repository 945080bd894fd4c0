package engine

import (
	"github.com/rhuss/runcode/pkg/api"
	"github.com/rhuss/runcode/pkg/tools"
)

// Config holds configuration for the engine.
type Config struct {
	// Executors handle tool calls, checked in order.
	Executors []tools.ToolExecutor

	// Validation bounds request fields. Zero value uses
	// api.DefaultValidationConfig.
	Validation api.ValidationConfig

	// MaxParallelCalls bounds concurrent executions within one batch.
	// Zero or negative means use the default of 4.
	MaxParallelCalls int

	// MaxBatchSize is the largest accepted batch. Zero or negative means
	// use the default of 16.
	MaxBatchSize int
}

func (c Config) validation() api.ValidationConfig {
	if c.Validation == (api.ValidationConfig{}) {
		return api.DefaultValidationConfig()
	}
	return c.Validation
}

func (c Config) maxParallel() int {
	if c.MaxParallelCalls <= 0 {
		return 4
	}
	return c.MaxParallelCalls
}

func (c Config) maxBatch() int {
	if c.MaxBatchSize <= 0 {
		return 16
	}
	return c.MaxBatchSize
}
