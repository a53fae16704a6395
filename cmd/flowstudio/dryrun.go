package main

import (
	"context"
	"fmt"

	"github.com/BaSui01/flowstudio/workflow/runner"
)

// dryRunModels echoes the resolved prompt so runs exercise the whole graph
// without contacting a model provider.
var dryRunModels = runner.ModelFunc(func(_ context.Context, call runner.ModelCall) (runner.ModelReply, error) {
	return runner.ModelReply{Text: fmt.Sprintf("[%s] %s", call.Model, call.Prompt)}, nil
})

// dryRunTools answers any tool name by returning its resolved params.
type dryRunTools struct{}

func (dryRunTools) Call(_ context.Context, name string, params map[string]any) (any, error) {
	return map[string]any{"tool": name, "params": params}, nil
}

var dryRunRetriever = runner.RetrieverFunc(func(context.Context, runner.RetrievalQuery) ([]runner.Document, error) {
	return nil, nil
})

// dryRunOptions wires the local runner to in-process stand-ins.
func dryRunOptions() []runner.LocalOption {
	return []runner.LocalOption{
		runner.WithModelInvoker(dryRunModels),
		runner.WithTools(dryRunTools{}),
		runner.WithMemory(runner.NewMemoryMap()),
		runner.WithRetriever(dryRunRetriever),
	}
}
