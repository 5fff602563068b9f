package runner

import (
	"bufio"
	"io"
	"strings"

	"github.com/peterh/liner"
)

// LineReader prints a prompt and reads one line without its terminator.
// At end of input it returns io.EOF.
type LineReader interface {
	Prompt(prompt string) (string, error)
}

// Scanner is a LineReader over plain streams, such as a pipe.
type Scanner struct {
	s   *bufio.Scanner
	out io.Writer
}

// NewScanner returns a Scanner reading lines from r and writing prompts to w.
func NewScanner(r io.Reader, w io.Writer) *Scanner {
	return &Scanner{s: bufio.NewScanner(r), out: w}
}

// Prompt implements LineReader.
func (s *Scanner) Prompt(prompt string) (string, error) {
	if _, err := io.WriteString(s.out, prompt); err != nil {
		return "", err
	}
	if !s.s.Scan() {
		if err := s.s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSuffix(s.s.Text(), "\r"), nil
}

// Terminal is a LineReader with line editing and history on the controlling
// terminal. Ctrl-C aborts the prompt with liner.ErrPromptAborted.
type Terminal struct {
	state *liner.State
}

// NewTerminal puts the terminal into raw mode until Close.
func NewTerminal() *Terminal {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	return &Terminal{state: state}
}

// Prompt implements LineReader.
func (t *Terminal) Prompt(prompt string) (string, error) {
	line, err := t.state.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if line != "" {
		t.state.AppendHistory(line)
	}
	return line, nil
}

// Close restores the terminal.
func (t *Terminal) Close() error {
	return t.state.Close()
}
