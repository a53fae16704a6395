// Package flowstudio provides a top-level convenience entry point for
// checking, analysing, editing and running workflow definitions.
//
// Usage:
//
//	import "github.com/BaSui01/flowstudio"
//
//	def, err := flowstudio.LoadFile("review.yaml")
//	res := flowstudio.Validate(def)
//	rep := flowstudio.Analyze(def, flowstudio.WithMaxPaths(20))
//
//	coord := flowstudio.NewCoordinator(flowstudio.NewLocalRunner(logger), logger)
//	id, err := coord.Start(ctx, def, map[string]any{"topic": "go"})
//
// These are thin wrappers around the workflow packages; both produce
// identical results. Use this package when you prefer the shorter import path.
package flowstudio

import (
	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/analytics"
	"github.com/BaSui01/flowstudio/workflow/execution"
	"github.com/BaSui01/flowstudio/workflow/history"
	"github.com/BaSui01/flowstudio/workflow/runner"
	"github.com/BaSui01/flowstudio/workflow/validation"
)

// Definition is a workflow graph.
type Definition = workflow.Definition

// NewBuilder starts a fluent definition builder.
var NewBuilder = workflow.NewBuilder

// LoadFile reads a definition from a .json, .yaml or .yml file.
var LoadFile = workflow.LoadFile

// Validate checks a definition and reports every error and warning.
func Validate(def *Definition) validation.Result {
	return validation.Validate(def)
}

// Analyze computes complexity, paths, bottlenecks and suggestions.
func Analyze(def *Definition, opts ...analytics.Option) analytics.Report {
	return analytics.Analyze(def, opts...)
}

// WithMaxPaths caps the enumerated execution paths.
var WithMaxPaths = analytics.WithMaxPaths

// WithZeroCounts lists node types that do not occur.
var WithZeroCounts = analytics.WithZeroCounts

// NewHistory opens an undoable editing session on a copy of def.
func NewHistory(def *Definition, opts ...history.Option) *history.History {
	return history.New(def, opts...)
}

// NewLocalRunner creates an in-process runner with default limits.
func NewLocalRunner(logger *zap.Logger, opts ...runner.LocalOption) *runner.LocalRunner {
	return runner.NewLocalRunner(runner.DefaultLocalConfig(), logger, opts...)
}

// NewCoordinator creates an execution coordinator with default limits.
func NewCoordinator(r execution.Runner, logger *zap.Logger, opts ...execution.Option) *execution.Coordinator {
	return execution.NewCoordinator(r, execution.DefaultConfig(), logger, opts...)
}
