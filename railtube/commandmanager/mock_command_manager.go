package commandmanager

import (
	"context"
	"sync"
)

// MockCommandManager answers commands from canned output keyed on the full
// command line (see CommandConfig.String) and records every call.
type MockCommandManager struct {
	mu sync.Mutex

	Outputs map[string]string
	// Failures maps a command line to the exit code it fails with.
	Failures map[string]int
	Calls    []CommandConfig
}

func NewMockCommandManager() *MockCommandManager {
	return &MockCommandManager{
		Outputs:  map[string]string{},
		Failures: map[string]int{},
	}
}

func (m *MockCommandManager) Run(ctx context.Context, config CommandConfig) (CommandResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, config)
	line := config.String()
	result := CommandResult{Command: line, STDOUT: m.Outputs[line]}
	if code, ok := m.Failures[line]; ok {
		result.ExitCode = code
		return result, &CommandError{Command: line, ExitCode: code, STDOUT: result.STDOUT}
	}
	return result, nil
}

// Lines returns the recorded command lines in call order.
func (m *MockCommandManager) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines := make([]string, 0, len(m.Calls))
	for _, c := range m.Calls {
		lines = append(lines, c.String())
	}
	return lines
}
