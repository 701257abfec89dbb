package domain

import (
	"fmt"
	"time"
)

// ToolError is a tool-local failure such as an argument that does not
// validate. It is reported inside a successful response as output.error.
type ToolError struct {
	Message string
	Details map[string]any
}

func (e ToolError) Error() string {
	return e.Message
}

// NewToolError builds a ToolError with a formatted message.
func NewToolError(format string, args ...any) ToolError {
	return ToolError{Message: fmt.Sprintf(format, args...)}
}

// ToolFault is an execution fault raised by a tool body: an unexpected
// error or a recovered panic.
type ToolFault struct {
	Tool       string
	Message    string
	Type       string
	StackTrace string
	Cause      error
}

func (f *ToolFault) Error() string {
	if f == nil {
		return ""
	}
	if f.Tool == "" {
		return fmt.Sprintf("tool execution failed: %s", f.Message)
	}
	return fmt.Sprintf("tool %s execution failed: %s", f.Tool, f.Message)
}

func (f *ToolFault) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Cause
}

// TimeoutError reports that a dispatched work item did not complete within
// its allotted wait.
type TimeoutError struct {
	Timeout time.Duration
	Waited  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool execution exceeded timeout of %d seconds", TimeoutSeconds(e.Timeout))
}

// TimeoutSeconds rounds a timeout up to whole seconds, never below one.
func TimeoutSeconds(timeout time.Duration) int {
	secs := int((timeout + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
