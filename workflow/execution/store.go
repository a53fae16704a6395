package execution

import (
	"sort"
	"sync"
	"time"
)

// Store keeps execution snapshots for querying. Implementations must be safe
// for concurrent use and must store and return copies.
type Store interface {
	Save(exec *Execution)
	Get(id string) (*Execution, bool)
	Delete(id string) bool
	List() []*Execution
	ListByWorkflow(workflowID string) []*Execution
	ListByStatus(status Status) []*Execution
	ListByTimeRange(start, end time.Time) []*Execution
}

// MemoryStore is an in-process Store. Listings are ordered by start time,
// then id.
type MemoryStore struct {
	executions map[string]*Execution
	mu         sync.RWMutex
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions: make(map[string]*Execution),
	}
}

// Save stores a copy of exec, replacing any previous snapshot.
func (s *MemoryStore) Save(exec *Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.ID] = exec.Clone()
}

// Get retrieves an execution by id.
func (s *MemoryStore) Get(id string) (*Execution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.executions[id]
	return e.Clone(), ok
}

// Delete removes an execution.
func (s *MemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[id]; !ok {
		return false
	}
	delete(s.executions, id)
	return true
}

// List returns every execution.
func (s *MemoryStore) List() []*Execution {
	return s.filter(func(*Execution) bool { return true })
}

// ListByWorkflow returns all executions for a workflow.
func (s *MemoryStore) ListByWorkflow(workflowID string) []*Execution {
	return s.filter(func(e *Execution) bool { return e.WorkflowID == workflowID })
}

// ListByStatus returns executions with a specific status.
func (s *MemoryStore) ListByStatus(status Status) []*Execution {
	return s.filter(func(e *Execution) bool { return e.Status == status })
}

// ListByTimeRange returns executions started within [start, end].
func (s *MemoryStore) ListByTimeRange(start, end time.Time) []*Execution {
	return s.filter(func(e *Execution) bool {
		return !e.StartTime.Before(start) && !e.StartTime.After(end)
	})
}

func (s *MemoryStore) filter(keep func(*Execution) bool) []*Execution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Execution, 0, len(s.executions))
	for _, e := range s.executions {
		if keep(e) {
			result = append(result, e.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].StartTime.Before(result[j].StartTime)
		}
		return result[i].ID < result[j].ID
	})
	return result
}
