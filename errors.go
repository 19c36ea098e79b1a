package colorplay

import (
	"fmt"
	"os"
	"strings"
)

// ParseError represents a detailed parsing error with context.
type ParseError struct {
	File    string // Source file path, empty for in-memory notebooks
	Line    int    // Line number (1-indexed)
	Column  int    // Column number (1-indexed, optional)
	Message string // Error message
	Hint    string // Helpful suggestion
	// Source is used for the code excerpt when File is empty.
	Source []byte
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

// Format returns a nicely formatted error message with context.
func (e *ParseError) Format() string {
	var b strings.Builder

	name := e.File
	if name == "" {
		name = "notebook"
	}
	b.WriteString(fmt.Sprintf("❌ Error in %s\n\n", name))
	b.WriteString(fmt.Sprintf("Line %d: %s\n", e.Line, e.Message))

	if context := e.codeContext(); context != "" {
		b.WriteString(context)
	}

	if e.Hint != "" {
		b.WriteString(fmt.Sprintf("\n💡 Tip: %s\n", e.Hint))
	}

	return b.String()
}

// codeContext extracts the lines around the error.
func (e *ParseError) codeContext() string {
	src := e.Source
	if src == nil && e.File != "" {
		data, err := os.ReadFile(e.File)
		if err != nil {
			return ""
		}
		src = data
	}
	if len(src) == 0 {
		return ""
	}

	lines := strings.Split(strings.ReplaceAll(string(src), "\r\n", "\n"), "\n")
	if e.Line < 1 || e.Line > len(lines) {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")

	// Show 2 lines before, the error line, and 2 lines after
	start := max(1, e.Line-2)
	end := min(len(lines), e.Line+2)

	for i := start; i <= end; i++ {
		prefix := fmt.Sprintf("  %2d | ", i)
		b.WriteString(prefix + lines[i-1] + "\n")

		if i == e.Line && e.Column > 0 {
			b.WriteString(strings.Repeat(" ", len(prefix)+e.Column-1) + "^\n")
		}
	}

	return b.String()
}

// NewParseError creates a new ParseError.
func NewParseError(file string, line int, message string) *ParseError {
	return &ParseError{
		File:    file,
		Line:    line,
		Message: message,
	}
}

// WithColumn adds column information to the error.
func (e *ParseError) WithColumn(col int) *ParseError {
	e.Column = col
	return e
}

// WithHint adds a helpful hint to the error.
func (e *ParseError) WithHint(hint string) *ParseError {
	e.Hint = hint
	return e
}

// WithSource attaches the text the line numbers refer to.
func (e *ParseError) WithSource(src []byte) *ParseError {
	e.Source = src
	return e
}
