// Package credentials resolves the opaque bearer credential attached to
// every backend request. Acquisition and refresh of the token happen
// elsewhere; this package only reads and persists it.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/hallucinationguys/alchemister/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	// EnvToken overrides the stored token when set.
	EnvToken = "ALCHEMISTER_TOKEN"

	currentVersion = 0
)

// Credentials is the on-disk shape of credentials.toml.
type Credentials struct {
	Version int    `toml:"version"`
	Token   string `toml:"token,omitempty"`
}

// Manager manages reading and writing credentials.toml in the .alchemister/
// directory.
type Manager struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewManager creates a new credentials Manager. If override is non-empty it
// is used as the .alchemister/ directory; otherwise the standard dotdir
// resolution applies.
func NewManager(override string) (*Manager, error) {
	mgr := &Manager{}
	mgr.ddm = dotdir.NewManager()

	target, err := mgr.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	mgr.targetPath = filepath.Join(target, credentialsFile)

	return mgr, nil
}

// Load reads credentials.toml from the target directory.
// Returns empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{Version: currentVersion}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	return creds, nil
}

// Save writes credentials to credentials.toml with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// ResolveToken returns the bearer token, preferring the ALCHEMISTER_TOKEN
// environment variable over the stored file. An empty return means
// unauthenticated; whether that is acceptable is the backend's call.
func (m *Manager) ResolveToken() (string, error) {
	if token := strings.TrimSpace(os.Getenv(EnvToken)); token != "" {
		return token, nil
	}

	creds, err := m.Load()
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(creds.Token), nil
}
