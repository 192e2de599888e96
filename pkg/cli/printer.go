// Package cli holds console output helpers shared by the memkeep commands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

var bold = color.New(color.Bold).SprintfFunc()

type Printer struct {
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{
		out: out,
	}
}

func (p *Printer) Println(a ...any) {
	fmt.Fprintln(p.out, a...)
}

func (p *Printer) Print(a ...any) {
	fmt.Fprint(p.out, a...)
}

func (p *Printer) Printf(format string, a ...any) {
	fmt.Fprintf(p.out, format, a...)
}

// Confirm asks a yes/no question and reports the answer. Interactive
// terminals answer with a single keypress, no Enter required; anything else
// falls back to reading one line from rd. No is the default either way.
func (p *Printer) Confirm(ctx context.Context, rd io.Reader, prompt string) bool {
	p.Printf("%s (y/N): ", bold(prompt))

	if f, ok := rd.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		if answer, done := p.confirmKeypress(f); done {
			return answer
		}
	}

	line, err := readLine(ctx, rd)
	if err != nil {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// confirmKeypress reads a single key in raw mode.
func (p *Printer) confirmKeypress(f *os.File) (answer, done bool) {
	fd := int(f.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return false, false
	}
	defer func() {
		if err := term.Restore(fd, oldState); err != nil {
			p.Printf("\nFailed to restore terminal state: %v\n", err)
		}
	}()

	buf := make([]byte, 1)
	for {
		if _, err := f.Read(buf); err != nil {
			return false, true
		}
		switch buf[0] {
		case 'y', 'Y':
			p.Println("yes")
			return true, true
		case 'n', 'N', '\r', '\n', 3: // 3 is Ctrl+C
			p.Println("no")
			return false, true
		default:
			// ignore other keys
		}
	}
}

// readLine reads one line from rd, giving up when ctx is cancelled. The
// read itself cannot be interrupted, so it runs in a goroutine that is
// abandoned on cancellation.
func readLine(ctx context.Context, rd io.Reader) (string, error) {
	lines := make(chan string)
	errs := make(chan error)

	go func() {
		defer close(lines)
		defer close(errs)

		line, err := bufio.NewReader(rd).ReadString('\n')
		if err != nil {
			errs <- err
		} else {
			lines <- line
		}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-errs:
		return "", err
	case line := <-lines:
		return line, nil
	}
}
