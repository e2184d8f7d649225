package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoInput is returned when the input stream ends before a line is read.
var ErrNoInput = errors.New("no input")

// LineReader reads operator input one line at a time. The command loop and the
// field prompts share one LineReader so buffered input is never lost between them.
type LineReader struct {
	scanner *bufio.Scanner
	writer  io.Writer
}

// NewLineReader creates a LineReader that echoes prompts to writer.
func NewLineReader(reader io.Reader, writer io.Writer) *LineReader {
	if writer == nil {
		writer = io.Discard
	}
	return &LineReader{
		scanner: bufio.NewScanner(reader),
		writer:  writer,
	}
}

// ReadLine reads the next raw line without trimming.
func (r *LineReader) ReadLine() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", ErrNoInput
	}
	return r.scanner.Text(), nil
}

// Prompt writes label and returns the trimmed answer.
func (r *LineReader) Prompt(label string) (string, error) {
	_, _ = fmt.Fprint(r.writer, label)
	line, err := r.ReadLine()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// PromptRequired re-prompts until a non-empty answer is given.
func (r *LineReader) PromptRequired(label string) (string, error) {
	for {
		answer, err := r.Prompt(label)
		if err != nil {
			return "", err
		}
		if answer != "" {
			return answer, nil
		}
		_, _ = fmt.Fprintln(r.writer, "A value is required.")
	}
}

// PromptYesNo asks a yes/no question until a valid answer is given.
// End of input counts as "no".
func (r *LineReader) PromptYesNo(question string) bool {
	for {
		answer, err := r.Prompt(question + " (y/n): ")
		if err != nil {
			return false
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
	}
}
