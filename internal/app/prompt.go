package app

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"

	"golang.org/x/term"

	"github.com/Hussein-Mazeh/secretvault/krypto"
)

// Prompter reads secrets without echoing them.
type Prompter interface {
	ReadSecret(prompt string) ([]byte, error)
}

// TerminalPrompter reads from the controlling terminal, falling back to
// /dev/tty when stdin is piped.
type TerminalPrompter struct {
	Out io.Writer
}

func (p TerminalPrompter) ReadSecret(prompt string) ([]byte, error) {
	out := p.Out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprint(out, prompt)
	defer fmt.Fprintln(out)

	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		return term.ReadPassword(fd)
	}

	tty, err := os.Open("/dev/tty")
	if err != nil {
		if runtime.GOOS == "windows" {
			return nil, userErrorf("passphrase must be set via an environment variable when stdin is piped")
		}
		return nil, userErrorf("stdin is piped and /dev/tty is not available")
	}
	defer tty.Close()
	return term.ReadPassword(int(tty.Fd()))
}

// readConfirmed asks twice and fails when the answers differ.
func readConfirmed(p Prompter, prompt, confirmPrompt string) ([]byte, error) {
	first, err := p.ReadSecret(prompt)
	if err != nil {
		return nil, err
	}
	confirm, err := p.ReadSecret(confirmPrompt)
	if err != nil {
		krypto.Wipe(first)
		return nil, err
	}
	defer krypto.Wipe(confirm)

	if !bytes.Equal(first, confirm) {
		krypto.Wipe(first)
		return nil, userErrorf("entries do not match")
	}
	return first, nil
}
