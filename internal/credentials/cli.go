package credentials

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// CLIHandler handles CLI commands for credential management
type CLIHandler struct {
	manager *Manager
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	lines   *bufio.Reader
}

// NewCLIHandler creates a new CLI handler for credential commands
func NewCLIHandler(manager *Manager, stdin io.Reader, stdout, stderr io.Writer) *CLIHandler {
	return &CLIHandler{
		manager: manager,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		lines:   bufio.NewReader(stdin),
	}
}

// PromptSecret asks for a value. Input is hidden when stdin is a terminal.
func (h *CLIHandler) PromptSecret(label string) (string, error) {
	_, _ = fmt.Fprintf(h.stderr, "%s: ", label)

	if f, ok := h.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(h.stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
		}
		return strings.TrimSpace(string(secret)), nil
	}

	line, err := h.lines.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("no input received for %s", strings.ToLower(label))
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Set stores the key and token in the keyring, prompting for any not given.
func (h *CLIHandler) Set(ctx context.Context, key, token string) error {
	var err error
	if strings.TrimSpace(key) == "" {
		if key, err = h.PromptSecret("Trello API key"); err != nil {
			return err
		}
	}
	if strings.TrimSpace(token) == "" {
		if token, err = h.PromptSecret("Trello token"); err != nil {
			return err
		}
	}

	if err := h.manager.Store(ctx, key, token); err != nil {
		if errors.Is(err, ErrKeyringNotAvailable) {
			return h.keyringNotAvailableError(err)
		}
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	_, _ = fmt.Fprintln(h.stdout, "Credentials stored in system keyring")
	_, _ = fmt.Fprintln(h.stdout, "Set trello.use_keyring: true in your config file to use them.")
	return nil
}

// keyringNotAvailableError returns a helpful error message when keyring is not available
func (h *CLIHandler) keyringNotAvailableError(cause error) error {
	msg := fmt.Sprintf(`%v

Alternative: use environment variables instead:
  export %s="your-api-key"
  export %s="your-token"

They may also be placed in a .env file in the working directory.
Run 'iroha credentials get' to verify credentials are detected.`, cause, EnvKey, EnvToken)

	return errors.New(msg)
}

// Get reports where credentials would be read from. The token is never printed.
func (h *CLIHandler) Get(ctx context.Context, configKey, configToken string, useKeyring bool) error {
	info, err := h.manager.Resolve(ctx, configKey, configToken, useKeyring)
	if err != nil {
		return fmt.Errorf("failed to get credentials: %w", err)
	}

	if !info.Found {
		keyringStatus := "Not found"
		if !useKeyring {
			keyringStatus = "Disabled (trello.use_keyring is false)"
		}
		_, _ = fmt.Fprintln(h.stdout, "No credentials found")
		_, _ = fmt.Fprintln(h.stdout, "Searched:")
		_, _ = fmt.Fprintln(h.stdout, "  - Config file: Not found")
		_, _ = fmt.Fprintf(h.stdout, "  - System keyring: %s\n", keyringStatus)
		_, _ = fmt.Fprintf(h.stdout, "  - Environment variables (%s, %s): Not found\n", EnvKey, EnvToken)
		_, _ = fmt.Fprintln(h.stdout, "\nSuggestion: Run 'iroha credentials set'")
		return nil
	}

	_, _ = fmt.Fprintf(h.stdout, "Source: %s\n", info.Source)
	_, _ = fmt.Fprintf(h.stdout, "Key: %s\n", info.MaskedKey())
	_, _ = fmt.Fprintln(h.stdout, "Token: ******** (hidden)")
	_, _ = fmt.Fprintln(h.stdout, "Status: Available")
	return nil
}

// Delete removes credentials from the keyring
func (h *CLIHandler) Delete(ctx context.Context) error {
	if err := h.manager.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}

	_, _ = fmt.Fprintln(h.stdout, "Credentials removed from system keyring")
	return nil
}
