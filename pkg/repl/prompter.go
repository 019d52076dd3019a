package repl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
)

// Prompter reads one line of input per call.
type Prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

// scanPrompter reads lines from any reader. It is used for pipes and
// scripts, and in tests.
type scanPrompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewLinePrompter returns a Prompter that reads newline-terminated lines
// from in and writes prompts to out.
func NewLinePrompter(in io.Reader, out io.Writer) Prompter {
	return &scanPrompter{scanner: bufio.NewScanner(in), out: out}
}

func (p *scanPrompter) Prompt(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}

func (p *scanPrompter) AppendHistory(string) {}

func (p *scanPrompter) Close() error { return nil }

// terminalPrompter edits lines with liner when stdin is a terminal.
type terminalPrompter struct {
	*liner.State
	supported  bool
	normalMode liner.ModeApplier
	rawMode    liner.ModeApplier
}

// NewTerminalPrompter returns a liner-backed Prompter with history and
// mnemonic completion. On terminals liner does not support it falls back
// to plain reads.
func NewTerminalPrompter() Prompter {
	p := new(terminalPrompter)

	normalMode, _ := liner.TerminalMode()

	p.State = liner.NewLiner()
	rawMode, err := liner.TerminalMode()
	if err != nil || !liner.TerminalSupported() {
		p.supported = false
	} else {
		p.supported = true
		p.normalMode = normalMode
		p.rawMode = rawMode

		normalMode.ApplyMode()
	}
	p.SetCtrlCAborts(true)
	p.SetTabCompletionStyle(liner.TabPrints)
	p.SetCompleter(complete)
	return p
}

func (p *terminalPrompter) Prompt(prompt string) (string, error) {
	if p.supported {
		p.rawMode.ApplyMode()
		defer p.normalMode.ApplyMode()
	} else {
		fmt.Print(prompt)
		prompt = ""
		defer fmt.Println()
	}
	line, err := p.State.Prompt(prompt)
	if err == liner.ErrPromptAborted {
		return "", nil
	}
	return line, err
}

func (p *terminalPrompter) AppendHistory(line string) {
	p.State.AppendHistory(line)
}

// complete offers command names after ':' and mnemonics otherwise.
func complete(line string) []string {
	var out []string
	if strings.HasPrefix(line, ":") {
		for _, c := range commands {
			if strings.HasPrefix(":"+c.name, line) {
				out = append(out, ":"+c.name)
			}
		}
		return out
	}
	word := strings.ToUpper(strings.TrimSpace(line))
	if word == "" || strings.ContainsAny(word, " \t") {
		return nil
	}
	for _, m := range mnemonics() {
		if strings.HasPrefix(m, word) {
			out = append(out, m)
		}
	}
	return out
}
