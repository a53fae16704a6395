package flowstudio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/testutil"
	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/execution"
	"github.com/BaSui01/flowstudio/workflow/runner"
)

func TestFacade_ValidateAnalyzeRun(t *testing.T) {
	def := NewBuilder("wf-facade", "facade").
		Start("start").
		Tool("lookup", workflow.ToolConfig{ToolName: "lookup"}).
		Connect("start", "lookup").
		Build()

	require.True(t, Validate(def).IsValid)
	rep := Analyze(def, WithMaxPaths(5))
	assert.Equal(t, 2, rep.TotalNodes)
	assert.Equal(t, [][]string{{"start", "lookup"}}, rep.ExecutionPaths)

	tools := runner.Tools{"lookup": func(_ context.Context, params map[string]any) (any, error) {
		return "found", nil
	}}
	coord := NewCoordinator(NewLocalRunner(zap.NewNop(), runner.WithTools(tools)), zap.NewNop())
	defer func() { _ = coord.Close(context.Background()) }()

	id, err := coord.Start(context.Background(), def, nil)
	require.NoError(t, err)
	require.True(t, testutil.WaitFor(func() bool {
		exec, err := coord.Get(id)
		return err == nil && exec.Status == execution.StatusCompleted
	}, 2*time.Second))

	exec, err := coord.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "found", exec.Result)
}

func TestFacade_History(t *testing.T) {
	def := NewBuilder("wf-edit", "edit").Start("start").Build()
	h := NewHistory(def)
	h.Commit(func(d *workflow.Definition) {
		d.Nodes = append(d.Nodes, workflow.NewNode("wait", workflow.NodeTypeDelay))
	})
	assert.Len(t, h.Current().Nodes, 2)
	prev, ok := h.Undo()
	require.True(t, ok)
	assert.Len(t, prev.Nodes, 1)
	assert.Len(t, def.Nodes, 1)
}
