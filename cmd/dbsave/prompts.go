package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

var errNoTTY = errors.New("stdin is not a TTY")

func ensureInteractiveStdin() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("passphrase prompt requires an interactive terminal: %w", errNoTTY)
	}
	return nil
}

// readPassphrase prompts for a passphrase twice without echoing and
// requires both entries to match.
func readPassphrase() (string, error) {
	if err := ensureInteractiveStdin(); err != nil {
		return "", err
	}

	fmt.Fprint(os.Stderr, "Enter passphrase: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}

	fmt.Fprint(os.Stderr, "Confirm passphrase: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passphrases do not match")
	}
	if strings.TrimSpace(string(first)) == "" {
		return "", errors.New("passphrase cannot be empty")
	}
	return string(first), nil
}
