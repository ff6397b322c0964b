// confirm.go implements interactive confirmation and {prompt} value input.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/kubekattle/setctl/internal/config"
)

// confirmProceed asks a yes/no question on the terminal. With noConfirm the
// question is skipped and the answer is yes.
func confirmProceed(question string, noConfirm bool) (bool, error) {
	if noConfirm {
		return true, nil
	}
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// promptFunc supplies values for parameters declared as "{prompt}". Input is
// hidden when stdin is a terminal since prompted values are often
// credentials. With prompting disabled it returns nil so resolution fails
// with a clear error instead of hanging a non-interactive run.
func promptFunc(noConfirm bool) config.PromptFunc {
	if noConfirm {
		return nil
	}
	return func(set, component, name string) (string, error) {
		label := color.New(color.Bold).Sprintf("%s/%s needs a value for %s", set, component, name)
		fd := int(os.Stdin.Fd())
		if term.IsTerminal(fd) {
			fmt.Fprintf(os.Stderr, "%s: ", label)
			raw, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return "", fmt.Errorf("read prompted value: %w", err)
			}
			return string(raw), nil
		}
		fmt.Fprintf(os.Stderr, "%s: ", label)
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read prompted value: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}
