package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/BaSui01/flowstudio/workflow"
	"github.com/BaSui01/flowstudio/workflow/analytics"
	"github.com/BaSui01/flowstudio/workflow/execution"
	"github.com/BaSui01/flowstudio/workflow/validation"
)

// =============================================================================
// 🎨 终端报告渲染
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	badStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

// renderValidation 输出校验结论与问题列表
func renderValidation(name string, res validation.Result) string {
	var b strings.Builder
	if res.IsValid {
		b.WriteString(okStyle.Render("✔ " + name + " is valid"))
	} else {
		b.WriteString(badStyle.Render(fmt.Sprintf("✘ %s is invalid (%d errors)", name, len(res.Errors))))
	}
	b.WriteByte('\n')

	if len(res.Errors)+len(res.Warnings) == 0 {
		return b.String()
	}
	t := newTable("SEVERITY", "CODE", "NODE", "EDGE", "MESSAGE")
	for _, i := range res.Errors {
		t.Row("error", i.Code, i.NodeID, i.EdgeID, i.Message)
	}
	for _, i := range res.Warnings {
		t.Row("warning", i.Code, i.NodeID, i.EdgeID, i.Message)
	}
	b.WriteString(t.String())
	b.WriteByte('\n')
	return b.String()
}

// renderAnalysis 输出复杂度、类型分布、路径、瓶颈与优化建议
func renderAnalysis(name string, rep analytics.Report) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(name))
	b.WriteString(fmt.Sprintf("  complexity %d (%s), %d nodes, %d edges\n",
		rep.ComplexityScore, rep.ComplexityLevel, rep.TotalNodes, rep.TotalEdges))

	types := make([]workflow.NodeType, 0, len(rep.NodeTypeDistribution))
	for t := range rep.NodeTypeDistribution {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	dist := newTable("NODE TYPE", "COUNT")
	for _, t := range types {
		dist.Row(string(t), strconv.Itoa(rep.NodeTypeDistribution[t]))
	}
	b.WriteString(dist.String())
	b.WriteByte('\n')

	if len(rep.ExecutionPaths) > 0 {
		b.WriteString(titleStyle.Render("Execution paths"))
		if rep.PathsTruncated {
			b.WriteString(dimStyle.Render(" (truncated)"))
		}
		b.WriteByte('\n')
		for i, p := range rep.ExecutionPaths {
			b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, strings.Join(p, " → ")))
		}
	}

	if len(rep.PotentialBottlenecks) > 0 {
		bt := newTable("NODE", "IMPACT", "REASON")
		for _, bn := range rep.PotentialBottlenecks {
			bt.Row(bn.NodeID, strconv.Itoa(bn.ImpactScore), bn.Reason)
		}
		b.WriteString(warnStyle.Render("Potential bottlenecks"))
		b.WriteByte('\n')
		b.WriteString(bt.String())
		b.WriteByte('\n')
	}

	if len(rep.OptimizationSuggestions) > 0 {
		st := newTable("TYPE", "NODES", "SUGGESTION")
		for _, s := range rep.OptimizationSuggestions {
			st.Row(s.Type, strings.Join(s.NodeIDs, ", "), s.Message)
		}
		b.WriteString(titleStyle.Render("Suggestions"))
		b.WriteByte('\n')
		b.WriteString(st.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// renderExecution 输出一次执行的终态、指标与节点明细
func renderExecution(exec *execution.Execution) string {
	var b strings.Builder
	style := okStyle
	switch exec.Status {
	case execution.StatusFailed:
		style = badStyle
	case execution.StatusCancelled:
		style = warnStyle
	}
	b.WriteString(style.Render(fmt.Sprintf("%s %s", exec.ID, exec.Status)))
	b.WriteString(fmt.Sprintf("  %d/%d steps, %d tokens, %d api calls, %.2fs\n",
		exec.CompletedSteps, exec.TotalSteps, exec.Metrics.TokensUsed,
		exec.Metrics.APICalls, exec.Metrics.ExecutionTimeSeconds))
	if exec.Error != nil {
		b.WriteString(badStyle.Render("error: "))
		if exec.Error.NodeID != "" {
			b.WriteString("[" + exec.Error.NodeID + "] ")
		}
		b.WriteString(exec.Error.Message)
		b.WriteByte('\n')
	}

	if len(exec.Nodes) > 0 {
		nt := newTable("NODE", "TYPE", "STATUS", "DURATION", "ERROR")
		for _, n := range exec.Nodes {
			nt.Row(n.NodeID, string(n.NodeType), string(n.Status), n.Duration.String(), n.Error)
		}
		b.WriteString(nt.String())
		b.WriteByte('\n')
	}
	return b.String()
}
