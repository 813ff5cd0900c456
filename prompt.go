package goxr

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/term"
)

// TerminalPrompter asks on the controlling terminal. It turns
// non-interactive when stdin is not a TTY.
type TerminalPrompter struct {
	in          *bufio.Reader
	out         io.Writer
	fd          int
	interactive bool
}

func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{
		in:          bufio.NewReader(os.Stdin),
		out:         os.Stderr,
		fd:          int(os.Stdin.Fd()),
		interactive: !IsNonInteractive(),
	}
}

// IsNonInteractive reports whether standard input is not a terminal.
func IsNonInteractive() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return true
	}
	return (fi.Mode()&os.ModeCharDevice) == 0 || !term.IsTerminal(int(os.Stdin.Fd()))
}

func (tp *TerminalPrompter) AskPassword(name string) (PasswordReply, error) {
	if !tp.interactive {
		return PasswordReply{}, ErrPasswordRequired
	}
	fmt.Fprintf(tp.out, "Enter password for %s (empty to cancel): ", name)
	pw, err := term.ReadPassword(tp.fd)
	fmt.Fprintln(tp.out)
	if err != nil {
		return PasswordReply{}, err
	}
	if len(pw) == 0 {
		return PasswordReply{Scope: ScopeCancel}, nil
	}
	reply := PasswordReply{Password: string(pw), Scope: ScopeEntry}
	for {
		switch tp.askRune("Use this password for all remaining files? [y/n]: ") {
		case 'y':
			reply.Scope = ScopeAll
			return reply, nil
		case 'n', '\n', 0:
			return reply, nil
		}
	}
}

func (tp *TerminalPrompter) ConfirmRetry(name string) bool {
	if !tp.interactive {
		return false
	}
	for {
		switch tp.askRune(fmt.Sprintf("Wrong password for %s. Try again? [y/n]: ", name)) {
		case 'y':
			return true
		case 'n', '\n', 0:
			return false
		}
	}
}

func (tp *TerminalPrompter) AskOverwrite(path string) (OverwriteReply, error) {
	if !tp.interactive {
		return OverwriteNo, nil
	}
	for {
		switch tp.askRune(fmt.Sprintf("File '%s' exists, overwrite? [y]es/[n]o/[a]ll/n[e]ver: ", path)) {
		case 'y':
			return OverwriteYes, nil
		case 'n':
			return OverwriteNo, nil
		case 'a':
			return OverwriteYesAll, nil
		case 'e':
			return OverwriteNoAll, nil
		case 0:
			return OverwriteNo, io.ErrUnexpectedEOF
		}
	}
}

// askRune prints question and returns the lowered first rune of the
// answer line, or 0 on end of input.
func (tp *TerminalPrompter) askRune(question string) rune {
	fmt.Fprint(tp.out, question)
	line, err := tp.in.ReadString('\n')
	if err != nil && line == "" {
		return 0
	}
	r := []rune(strings.TrimSpace(line))
	if len(r) == 0 {
		return '\n'
	}
	return unicode.ToLower(r[0])
}
