// Package dialog implements lifecycle.Dialog for terminals and for
// unattended runs.
package dialog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/omuapps/obssync/internal/lifecycle"
)

var (
	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	hintStyle     = lipgloss.NewStyle().Faint(true)
	answerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

type lineResult struct {
	text string
	err  error
	// shown is the number of prompts printed when the line was read.
	shown uint64
}

// Terminal asks questions on a line-oriented terminal. Prompts return as soon
// as their context is cancelled, even while waiting for input.
type Terminal struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan lineResult
	shown atomic.Uint64
	// stale is set when a prompt closed without an answer. Lines read before
	// the next prompt was printed belong to the closed one and are dropped.
	stale bool
}

// NewTerminal creates a terminal dialog reading answers from in.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out}
}

// Interactive reports whether stdin and stdout are both terminals.
func Interactive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

func (t *Terminal) pump() {
	defer close(t.lines)
	reader := bufio.NewReader(t.in)
	for {
		line, err := reader.ReadString('\n')
		shown := t.shown.Load()
		if line != "" || err == nil {
			t.lines <- lineResult{text: strings.TrimSpace(line), shown: shown}
		}
		if err != nil {
			if err != io.EOF {
				t.lines <- lineResult{err: err, shown: shown}
			}
			return
		}
	}
}

// ask prints question and waits for one line. The reader goroutine starts
// on first use and lives until in is exhausted. Prompts must not overlap.
func (t *Terminal) ask(ctx context.Context, question, hint string) (string, error) {
	t.once.Do(func() {
		t.lines = make(chan lineResult)
		go t.pump()
	})

	n := t.shown.Add(1)
	fmt.Fprintf(t.out, "%s %s ", questionStyle.Render(question), hintStyle.Render(hint))

	for {
		select {
		case <-ctx.Done():
			t.stale = true
			fmt.Fprintln(t.out, hintStyle.Render("(closed)"))
			return "", ctx.Err()
		case r, ok := <-t.lines:
			if !ok {
				fmt.Fprintln(t.out)
				return "", io.EOF
			}
			if t.stale && r.err == nil && r.shown < n {
				continue
			}
			t.stale = false
			return strings.ToLower(r.text), r.err
		}
	}
}

func (t *Terminal) Confirm(ctx context.Context, question string) (lifecycle.Choice, error) {
	answer, err := t.ask(ctx, question, "[y/N]")
	if err == io.EOF {
		return lifecycle.Decline, nil
	}
	if err != nil {
		return lifecycle.Decline, err
	}
	if answer == "y" || answer == "yes" {
		return lifecycle.Proceed, nil
	}
	return lifecycle.Decline, nil
}

func (t *Terminal) ConfirmRetry(ctx context.Context, question string) (lifecycle.RetryChoice, error) {
	for {
		answer, err := t.ask(ctx, question, "[R]etry/[c]ancel")
		if err == io.EOF {
			return lifecycle.Cancel, nil
		}
		if err != nil {
			return lifecycle.Cancel, err
		}
		switch answer {
		case "", "r", "retry":
			return lifecycle.Retry, nil
		case "c", "cancel":
			return lifecycle.Cancel, nil
		}
		fmt.Fprintf(t.out, "%s\n", hintStyle.Render("answer r or c"))
	}
}

// Auto answers every question without input, for --yes and unattended hosts.
// It gives up waiting after MaxRetries retry questions. Each Confirm starts a
// new stop cycle with a fresh retry budget.
type Auto struct {
	Answer     lifecycle.Choice
	MaxRetries int
	Out        io.Writer

	mu      sync.Mutex
	retries int
}

// AutoConfirm proceeds with every stop and retries up to maxRetries times.
func AutoConfirm(maxRetries int, out io.Writer) *Auto {
	return &Auto{Answer: lifecycle.Proceed, MaxRetries: maxRetries, Out: out}
}

// AutoDecline never stops the process.
func AutoDecline(out io.Writer) *Auto {
	return &Auto{Answer: lifecycle.Decline, Out: out}
}

func (a *Auto) Confirm(ctx context.Context, question string) (lifecycle.Choice, error) {
	if err := ctx.Err(); err != nil {
		return lifecycle.Decline, err
	}
	answer := "no"
	if a.Answer == lifecycle.Proceed {
		answer = "yes"
	}
	a.mu.Lock()
	a.retries = 0
	a.mu.Unlock()
	a.echo(question, answer)
	return a.Answer, nil
}

func (a *Auto) ConfirmRetry(ctx context.Context, question string) (lifecycle.RetryChoice, error) {
	if err := ctx.Err(); err != nil {
		return lifecycle.Cancel, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.retries >= a.MaxRetries {
		a.echo(question, "cancel")
		return lifecycle.Cancel, nil
	}
	a.retries++
	a.echo(question, "retry")
	return lifecycle.Retry, nil
}

func (a *Auto) echo(question, answer string) {
	if a.Out == nil {
		return
	}
	fmt.Fprintf(a.Out, "%s %s\n", questionStyle.Render(question), answerStyle.Render(answer+" (auto)"))
}
