// Package runner drives the interactive prompt loop around a binary i32
// function.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/peterh/liner"
)

// InputError is returned when an operand is not a 32-bit integer or input
// ended before one was read.
type InputError struct {
	Input string
	Err   error
}

// Error implements error.
func (e *InputError) Error() string {
	if errors.Is(e.Err, io.EOF) {
		return "input ended before an operand was read"
	}
	return fmt.Sprintf("%q: %v", e.Input, e.Err)
}

// Unwrap returns the underlying error.
func (e *InputError) Unwrap() error {
	return e.Err
}

// Option configures a Runner.
type Option func(*Runner)

// WithBase sets the base operands are parsed in, 10 or 16. In base 16 an
// optional 0x prefix is accepted.
func WithBase(base int) Option {
	return func(r *Runner) {
		r.base = base
	}
}

// WithReprompt makes the runner ask again for an operand it cannot parse
// instead of failing.
func WithReprompt(reprompt bool) Option {
	return func(r *Runner) {
		r.reprompt = reprompt
	}
}

// Runner repeatedly reads two operands, calls a function with them and
// prints the result.
type Runner struct {
	in       LineReader
	out      io.Writer
	base     int
	reprompt bool
}

// New returns a Runner reading from in and printing results to out.
func New(in LineReader, out io.Writer, opts ...Option) *Runner {
	r := &Runner{in: in, out: out, base: 10}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Loop runs rounds until the answer to "Again?" is exactly "n", input ends
// at that prompt, or a prompt is aborted. Any other answer starts a new
// round.
func (r *Runner) Loop(ctx context.Context, sum BinaryI32) error {
	for {
		a, err := r.operand("a = ")
		if err != nil {
			return abortedOr(err)
		}
		b, err := r.operand("b = ")
		if err != nil {
			return abortedOr(err)
		}

		result, err := sum(ctx, a, b)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "sum(%d, %d) = %d\n", a, b, result)

		answer, err := r.in.Prompt("Again? (Y/n) ")
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, liner.ErrPromptAborted):
			fmt.Fprintln(r.out)
			return nil
		case err != nil:
			return err
		case answer == "n":
			return nil
		}
		fmt.Fprintln(r.out)
	}
}

func (r *Runner) operand(prompt string) (int32, error) {
	for {
		line, err := r.in.Prompt(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, &InputError{Err: err}
			}
			return 0, err
		}
		v, err := parseInt32(line, r.base)
		if err == nil {
			return v, nil
		}
		if !r.reprompt {
			return 0, &InputError{Input: line, Err: err}
		}
		fmt.Fprintf(r.out, "not a base %d integer: %q\n", r.base, line)
	}
}

func abortedOr(err error) error {
	if errors.Is(err, liner.ErrPromptAborted) {
		return nil
	}
	return err
}

func parseInt32(s string, base int) (int32, error) {
	s = strings.TrimSpace(s)
	if base == 16 {
		s = trimHexPrefix(s)
	}
	v, err := strconv.ParseInt(s, base, 32)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			return 0, numErr.Err
		}
		return 0, err
	}
	return int32(v), nil
}

// trimHexPrefix removes 0x after an optional sign.
func trimHexPrefix(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], s[1:]
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	return sign + s
}
