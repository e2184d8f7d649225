// Package credentials resolves the Trello API key and token from the config
// file, the OS keyring or the environment.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Keyring service and account names.
const (
	ServiceName  = "iroha-trello"
	AccountKey   = "key"
	AccountToken = "token"
)

// Environment variables consulted after the config file and keyring.
const (
	EnvKey   = "IROHA_TRELLO_KEY"
	EnvToken = "IROHA_TRELLO_TOKEN"
)

// DefaultEnvFile is read for the environment variables when present.
const DefaultEnvFile = ".env"

// Source indicates where credentials were retrieved from
type Source string

const (
	SourceConfig      Source = "config"
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// CredentialInfo is the outcome of Resolve.
type CredentialInfo struct {
	Source Source
	Key    string
	Token  string
	Found  bool
}

// MaskedKey shows only the first four characters of the key.
func (c *CredentialInfo) MaskedKey() string {
	if len(c.Key) <= 4 {
		return strings.Repeat("*", len(c.Key))
	}
	return c.Key[:4] + strings.Repeat("*", 8)
}

// Keyring is the interface for keyring operations
type Keyring interface {
	Set(service, account, password string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// Manager handles credential operations
type Manager struct {
	keyring Keyring
	envFile string
	getenv  func(string) string
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithKeyring sets a custom keyring implementation
func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) {
		m.keyring = k
	}
}

// WithEnvFile sets the dotenv file read during resolution. An empty path disables it.
func WithEnvFile(path string) ManagerOption {
	return func(m *Manager) {
		m.envFile = path
	}
}

// WithGetenv replaces os.Getenv.
func WithGetenv(getenv func(string) string) ManagerOption {
	return func(m *Manager) {
		m.getenv = getenv
	}
}

// NewManager creates a new credential manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		keyring: &systemKeyring{},
		envFile: DefaultEnvFile,
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolve returns the first complete key/token pair from, in order, the
// config values, the keyring (when useKeyring is set) and the environment.
// A source holding only one half is skipped. Not finding credentials is not
// an error; Found is false.
func (m *Manager) Resolve(ctx context.Context, configKey, configToken string, useKeyring bool) (*CredentialInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if key, token := strings.TrimSpace(configKey), strings.TrimSpace(configToken); key != "" && token != "" {
		return &CredentialInfo{Source: SourceConfig, Key: key, Token: token, Found: true}, nil
	}

	if useKeyring {
		key, token, err := m.fromKeyring()
		switch {
		case err == nil:
			return &CredentialInfo{Source: SourceKeyring, Key: key, Token: token, Found: true}, nil
		case !errors.Is(err, ErrKeyringEntryNotFound):
			return nil, fmt.Errorf("failed to read keyring: %w", err)
		}
	}

	key, token, err := m.fromEnvironment()
	if err != nil {
		return nil, err
	}
	if key != "" && token != "" {
		return &CredentialInfo{Source: SourceEnvironment, Key: key, Token: token, Found: true}, nil
	}

	return &CredentialInfo{Source: SourceNone}, nil
}

func (m *Manager) fromKeyring() (string, string, error) {
	key, err := m.keyring.Get(ServiceName, AccountKey)
	if err != nil {
		return "", "", err
	}
	token, err := m.keyring.Get(ServiceName, AccountToken)
	if err != nil {
		return "", "", err
	}
	if key == "" || token == "" {
		return "", "", ErrKeyringEntryNotFound
	}
	return key, token, nil
}

// fromEnvironment reads the process environment, falling back to the dotenv
// file for unset variables. A missing file is not an error.
func (m *Manager) fromEnvironment() (string, string, error) {
	key := strings.TrimSpace(m.getenv(EnvKey))
	token := strings.TrimSpace(m.getenv(EnvToken))
	if (key != "" && token != "") || m.envFile == "" {
		return key, token, nil
	}

	values, err := godotenv.Read(m.envFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return key, token, nil
		}
		return "", "", fmt.Errorf("failed to read %s: %w", m.envFile, err)
	}
	if key == "" {
		key = strings.TrimSpace(values[EnvKey])
	}
	if token == "" {
		token = strings.TrimSpace(values[EnvToken])
	}
	return key, token, nil
}

// Store saves the key and token in the keyring.
func (m *Manager) Store(ctx context.Context, key, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, token = strings.TrimSpace(key), strings.TrimSpace(token)
	if key == "" || token == "" {
		return errors.New("both key and token are required")
	}
	if err := m.keyring.Set(ServiceName, AccountKey, key); err != nil {
		return err
	}
	return m.keyring.Set(ServiceName, AccountToken, token)
}

// Delete removes the key and token from the keyring. Missing entries are ignored.
func (m *Manager) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, account := range []string{AccountKey, AccountToken} {
		if err := m.keyring.Delete(ServiceName, account); err != nil && !errors.Is(err, ErrKeyringEntryNotFound) {
			return err
		}
	}
	return nil
}
