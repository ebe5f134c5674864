package orchestrator

import (
	"fmt"
	"strings"
	"sync"
)

// ExecutionState tracks per-action outcomes and the global reference
// map. Outputs are installed atomically on completion; the completed
// and failed sets are disjoint by construction.
type ExecutionState struct {
	mu        sync.RWMutex
	completed map[string]map[string]interface{}
	failed    map[string]string
	refs      map[string]interface{}
	order     []string
}

func NewExecutionState() *ExecutionState {
	return &ExecutionState{
		completed: make(map[string]map[string]interface{}),
		failed:    make(map[string]string),
		refs:      make(map[string]interface{}),
	}
}

// Complete installs an action's outputs and its dotted references in
// one atomic step. A previously failed action moves to completed.
func (s *ExecutionState) Complete(actionID string, outputs map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.failed, actionID)
	s.completed[actionID] = outputs
	s.order = append(s.order, actionID)
	for key, value := range outputs {
		s.refs[fmt.Sprintf("%s.%s", actionID, key)] = value
	}
}

// Fail records an action failure. No-op if the action later completed.
func (s *ExecutionState) Fail(actionID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.completed[actionID]; done {
		return
	}
	s.failed[actionID] = message
}

// Lookup resolves a dotted "action_<id>.<key>" reference, walking
// nested maps for deeper paths.
func (s *ExecutionState) Lookup(ref string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.refs[ref]; ok {
		return v, true
	}

	// Deep path: action_1.result.items resolves through nested maps.
	parts := strings.Split(ref, ".")
	if len(parts) < 2 {
		return nil, false
	}
	outputs, ok := s.completed[parts[0]]
	if !ok {
		return nil, false
	}
	var current interface{} = outputs
	for _, part := range parts[1:] {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Outputs returns the outputs of one completed action.
func (s *ExecutionState) Outputs(actionID string) (map[string]interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.completed[actionID]
	return out, ok
}

// Completed returns a copy of the completed set.
func (s *ExecutionState) Completed() map[string]map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]interface{}, len(s.completed))
	for id, v := range s.completed {
		out[id] = v
	}
	return out
}

// Failed returns a copy of the failed set.
func (s *ExecutionState) Failed() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.failed))
	for id, msg := range s.failed {
		out[id] = msg
	}
	return out
}

// LastCompleted returns the id of the most recently completed action.
func (s *ExecutionState) LastCompleted() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return "", false
	}
	return s.order[len(s.order)-1], true
}
