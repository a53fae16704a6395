package execution

import (
	"time"

	"github.com/BaSui01/flowstudio/workflow"
)

// Status is the lifecycle state of an execution.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is absorbing.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// LogLevel is the severity of an execution log entry.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is one line of an execution log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	NodeID    string    `json:"nodeId,omitempty"`
}

// Failure describes why an execution failed.
type Failure struct {
	Message   string    `json:"message"`
	NodeID    string    `json:"nodeId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Metrics aggregates resource usage of a run. They are frozen once the
// execution reaches a terminal state.
type Metrics struct {
	TokensUsed           int     `json:"tokensUsed"`
	APICalls             int     `json:"apiCalls"`
	MemoryUsage          int64   `json:"memoryUsage"`
	ExecutionTimeSeconds float64 `json:"executionTimeSeconds"`
	Cost                 float64 `json:"cost"`
}

// Usage is a resource delta reported by a runner. Counters add up; memory
// keeps the peak.
type Usage struct {
	TokensUsed  int
	APICalls    int
	MemoryUsage int64
	Cost        float64
}

func (m *Metrics) apply(u Usage) {
	m.TokensUsed += u.TokensUsed
	m.APICalls += u.APICalls
	m.Cost += u.Cost
	if u.MemoryUsage > m.MemoryUsage {
		m.MemoryUsage = u.MemoryUsage
	}
}

// NodeRun records one execution of a single node.
type NodeRun struct {
	NodeID    string            `json:"nodeId"`
	NodeType  workflow.NodeType `json:"nodeType"`
	StartTime time.Time         `json:"startTime"`
	EndTime   time.Time         `json:"endTime,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Status    Status            `json:"status"`
	Error     string            `json:"error,omitempty"`
}

// Execution is one run of a workflow definition against an input.
type Execution struct {
	ID             string         `json:"id"`
	WorkflowID     string         `json:"workflowId"`
	Status         Status         `json:"status"`
	StartTime      time.Time      `json:"startTime"`
	EndTime        *time.Time     `json:"endTime,omitempty"`
	Progress       int            `json:"progress"`
	CurrentStep    string         `json:"currentStep,omitempty"`
	TotalSteps     int            `json:"totalSteps"`
	CompletedSteps int            `json:"completedSteps"`
	Metrics        Metrics        `json:"metrics"`
	Logs           []LogEntry     `json:"logs"`
	Nodes          []NodeRun      `json:"nodes,omitempty"`
	Error          *Failure       `json:"error,omitempty"`
	Result         any            `json:"result,omitempty"`
	RetryOf        string         `json:"retryOf,omitempty"`
	Input          map[string]any `json:"input,omitempty"`
}

// Clone returns a copy that shares nothing mutable with e except Result and
// Input values, which are treated as immutable once recorded.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}
	c := *e
	if e.EndTime != nil {
		t := *e.EndTime
		c.EndTime = &t
	}
	if e.Error != nil {
		f := *e.Error
		c.Error = &f
	}
	c.Logs = append([]LogEntry(nil), e.Logs...)
	if c.Logs == nil {
		c.Logs = []LogEntry{}
	}
	c.Nodes = append([]NodeRun(nil), e.Nodes...)
	if e.Input != nil {
		c.Input = make(map[string]any, len(e.Input))
		for k, v := range e.Input {
			c.Input[k] = v
		}
	}
	return &c
}

// EventType identifies a subscription event.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
)

// Event is delivered to subscribers. Events of one execution arrive in the
// order its transitions happened.
type Event struct {
	Type           EventType `json:"type"`
	ExecutionID    string    `json:"executionId"`
	WorkflowID     string    `json:"workflowId"`
	Status         Status    `json:"status"`
	Progress       int       `json:"progress"`
	CompletedSteps int       `json:"completedSteps"`
	TotalSteps     int       `json:"totalSteps"`
	CurrentStep    string    `json:"currentStep,omitempty"`
	Error          *Failure  `json:"error,omitempty"`
	Result         any       `json:"result,omitempty"`
	Metrics        Metrics   `json:"metrics"`
	Timestamp      time.Time `json:"timestamp"`
}

// Handler receives subscription events. Panics are recovered and logged.
type Handler func(Event)
