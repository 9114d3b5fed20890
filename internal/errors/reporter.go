package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel represents the severity of a diagnostic
type ErrorLevel string

const (
	Error   ErrorLevel = "error"
	Warning ErrorLevel = "warning"
	Note    ErrorLevel = "note"
)

// BackendError is a structured diagnostic produced by the code
// generation backend. Backend diagnostics locate problems by function
// and basic block rather than by source position: by the time a CFG is
// being built, source locations belong to upstream passes.
type BackendError struct {
	Level    ErrorLevel
	Code     string // Error code like E0801
	Message  string // Primary error message
	Function string // CFG name the problem was found in
	Block    int    // Basic block number, -1 when not applicable
	Notes    []string
}

func (e BackendError) Error() string {
	if e.Function == "" {
		return fmt.Sprintf("%s[%s]: %s", e.Level, e.Code, e.Message)
	}
	return fmt.Sprintf("%s[%s]: %s: %s", e.Level, e.Code, e.Function, e.Message)
}

// New creates a backend error diagnostic.
func New(code, function, message string) BackendError {
	return BackendError{
		Level:    Error,
		Code:     code,
		Message:  message,
		Function: function,
		Block:    -1,
	}
}

// NewWarning creates a backend warning diagnostic.
func NewWarning(code, function, message string) BackendError {
	e := New(code, function, message)
	e.Level = Warning
	return e
}

// InBlock attaches a basic block location to the diagnostic.
func (e BackendError) InBlock(block int) BackendError {
	e.Block = block
	return e
}

// WithNote appends additional context to the diagnostic.
func (e BackendError) WithNote(note string) BackendError {
	e.Notes = append(e.Notes, note)
	return e
}

// Reporter formats backend diagnostics for terminal output.
type Reporter struct {
	contract string
}

// NewReporter creates a reporter for one contract's diagnostics.
func NewReporter(contract string) *Reporter {
	return &Reporter{contract: contract}
}

// Format renders a diagnostic with the same styling the rest of the
// toolchain uses: level[code]: message, then indented location lines.
func (r *Reporter) Format(err BackendError) string {
	var result strings.Builder

	levelColor := r.levelColor(err.Level)
	dim := color.New(color.Faint).SprintFunc()

	result.WriteString(fmt.Sprintf("%s[%s]: %s\n",
		levelColor(string(err.Level)), err.Code, err.Message))

	location := r.contract
	if err.Function != "" {
		location += "::" + err.Function
	}
	if err.Block >= 0 {
		location += fmt.Sprintf(" block%d", err.Block)
	}
	result.WriteString(fmt.Sprintf("   %s %s\n", dim("-->"), location))

	for _, note := range err.Notes {
		noteColor := color.New(color.FgBlue).SprintFunc()
		result.WriteString(fmt.Sprintf("   %s %s %s\n", dim("│"), noteColor("note:"), note))
	}

	return result.String()
}

func (r *Reporter) levelColor(level ErrorLevel) func(...interface{}) string {
	switch level {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}
