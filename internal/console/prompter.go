// File: internal/console/prompter.go

// Package console carries askUser exchanges and consent prompts to the
// terminal. Answers are read from stdin; an unanswered prompt resolves to
// the default choice when its timeout lapses.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultAskTimeout = 60 * time.Second

// Prompter implements schemas.Prompter over a line-oriented terminal.
type Prompter struct {
	logger *zap.Logger
	out    io.Writer

	mu    sync.Mutex
	lines chan string
	once  sync.Once
	in    io.Reader
}

// New builds a prompter reading from stdin and writing to stderr, keeping
// stdout clean for run output.
func New(logger *zap.Logger) *Prompter {
	return NewWithStreams(logger, os.Stdin, os.Stderr)
}

// NewWithStreams is the injectable constructor used by tests.
func NewWithStreams(logger *zap.Logger, in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		logger: logger.Named("console"),
		out:    out,
		in:     in,
	}
}

// readLoop feeds stdin lines into a channel so Ask can race them against the
// timeout. Started lazily on the first prompt; the goroutine lives for the
// process, which is the lifetime of stdin anyway.
func (p *Prompter) readLoop() {
	p.once.Do(func() {
		p.lines = make(chan string)
		go func() {
			scanner := bufio.NewScanner(p.in)
			for scanner.Scan() {
				p.lines <- strings.TrimSpace(scanner.Text())
			}
			close(p.lines)
		}()
	})
}

// Ask poses a question and returns the index of the chosen option. An empty
// answer, a timeout, or closed stdin all resolve to defaultChoice.
func (p *Prompter) Ask(ctx context.Context, question string, choices []string, defaultChoice int, timeoutMs int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readLoop()

	if defaultChoice < 0 || defaultChoice >= len(choices) {
		defaultChoice = 0
	}
	timeout := defaultAskTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}

	fmt.Fprintf(p.out, "\n%s\n", question)
	for i, choice := range choices {
		marker := " "
		if i == defaultChoice {
			marker = "*"
		}
		fmt.Fprintf(p.out, " %s %d) %s\n", marker, i+1, choice)
	}
	fmt.Fprintf(p.out, "Choice [%d]: ", defaultChoice+1)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return defaultChoice, ctx.Err()
		case <-timer.C:
			fmt.Fprintf(p.out, "\n(no answer within %s, using default)\n", timeout)
			p.logger.Debug("Prompt timed out", zap.String("question", question))
			return defaultChoice, nil
		case line, ok := <-p.lines:
			if !ok {
				// stdin is gone; every future prompt resolves to its default.
				return defaultChoice, nil
			}
			idx, err := parseChoice(line, choices, defaultChoice)
			if err != nil {
				fmt.Fprintf(p.out, "%v\nChoice [%d]: ", err, defaultChoice+1)
				continue
			}
			return idx, nil
		}
	}
}

// parseChoice accepts a 1-based number, a unique choice-text prefix, or an
// empty line for the default.
func parseChoice(line string, choices []string, defaultChoice int) (int, error) {
	if line == "" {
		return defaultChoice, nil
	}
	if n, err := strconv.Atoi(line); err == nil {
		if n < 1 || n > len(choices) {
			return 0, fmt.Errorf("enter a number between 1 and %d", len(choices))
		}
		return n - 1, nil
	}

	match := -1
	for i, choice := range choices {
		if strings.HasPrefix(strings.ToLower(choice), strings.ToLower(line)) {
			if match >= 0 {
				return 0, fmt.Errorf("%q is ambiguous", line)
			}
			match = i
		}
	}
	if match < 0 {
		return 0, fmt.Errorf("%q matches none of the options", line)
	}
	return match, nil
}
