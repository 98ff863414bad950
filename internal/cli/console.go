package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ConsoleUI answers confirmation prompts on a terminal. It stands in for the
// host application's modal dialogs when the bridge runs standalone.
type ConsoleUI struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsoleUI creates a console UI reading answers from in and writing
// prompts to out.
func NewConsoleUI(in io.Reader, out io.Writer) *ConsoleUI {
	return &ConsoleUI{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// InputBox prints the prompt and reads one line. An empty line or closed
// input counts as cancel, matching the dialog's cancel button.
func (c *ConsoleUI) InputBox(prompt, title string) (string, bool, error) {
	fmt.Fprintf(c.out, "\n=== %s ===\n%s\n> ", title, prompt)

	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, fmt.Errorf("reading confirmation input: %w", err)
	}

	value := strings.TrimSpace(line)
	if value == "" {
		return "", true, nil
	}
	return value, false, nil
}

// MessageBox prints the message.
func (c *ConsoleUI) MessageBox(text, title string) {
	fmt.Fprintf(c.out, "\n=== %s ===\n%s\n", title, text)
}
