// Package config loads the TOML-based configuration for opening a
// database and, optionally, binding a sync session to it. Grounded on
// the teacher's internal/parser/toml package: a raw tomlXxx document
// shape decoded with BurntSushi/toml, then converted (with validation)
// into the package's own canonical types.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"smfdb/internal/syncclient"
)

// configFile is the top-level TOML document shape.
type configFile struct {
	Database tomlDatabase  `toml:"database"`
	Sync     *tomlSync     `toml:"sync"`
}

type tomlDatabase struct {
	Path string `toml:"path"`
}

type tomlSync struct {
	ServerURL     string `toml:"server_url"`
	RealmPath     string `toml:"realm_path"`
	ResetMode     string `toml:"reset_mode"`
	TimeoutSecond int    `toml:"timeout_seconds"`
}

// OpenOptions is the canonical, validated configuration for opening a
// database, generalized from the teacher's core.Database fields
// (name/dialect) to this store's own notion of a database instance.
type OpenOptions struct {
	Path string
}

// SyncDescriptor is the canonical, validated configuration for binding
// a sync session, per §7.
type SyncDescriptor struct {
	ServerURL string
	RealmPath string
	ResetMode syncclient.ResetMode
	Timeout   time.Duration
}

// Config is the fully parsed and validated configuration.
type Config struct {
	Open OpenOptions
	Sync *SyncDescriptor // nil when the [sync] section is absent
}

// ErrInvalidConfig reports a semantic problem in an otherwise
// syntactically valid TOML document.
type ErrInvalidConfig struct {
	Field  string
	Reason string
}

func (e *ErrInvalidConfig) Error() string {
	return fmt.Sprintf("config: invalid %s: %s", e.Field, e.Reason)
}

// LoadFile opens path and parses it as a configuration document.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open file %q: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a TOML document from r and converts it into a validated
// Config.
func Load(r io.Reader) (*Config, error) {
	var cf configFile
	if _, err := toml.NewDecoder(r).Decode(&cf); err != nil {
		return nil, fmt.Errorf("config: decode error: %w", err)
	}
	return newConverter(&cf).convert()
}

type converter struct {
	cf *configFile
}

func newConverter(cf *configFile) *converter { return &converter{cf: cf} }

func (c *converter) convert() (*Config, error) {
	if c.cf.Database.Path == "" {
		return nil, &ErrInvalidConfig{Field: "database.path", Reason: "must not be empty"}
	}
	cfg := &Config{Open: OpenOptions{Path: c.cf.Database.Path}}

	if c.cf.Sync != nil {
		sync, err := c.convertSync(c.cf.Sync)
		if err != nil {
			return nil, err
		}
		cfg.Sync = sync
	}
	return cfg, nil
}

func (c *converter) convertSync(s *tomlSync) (*SyncDescriptor, error) {
	if s.ServerURL == "" {
		return nil, &ErrInvalidConfig{Field: "sync.server_url", Reason: "must not be empty"}
	}
	if s.RealmPath == "" {
		return nil, &ErrInvalidConfig{Field: "sync.realm_path", Reason: "must not be empty"}
	}
	mode, err := parseResetMode(s.ResetMode)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(s.TimeoutSecond) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SyncDescriptor{
		ServerURL: s.ServerURL,
		RealmPath: s.RealmPath,
		ResetMode: mode,
		Timeout:   timeout,
	}, nil
}

func parseResetMode(raw string) (syncclient.ResetMode, error) {
	switch raw {
	case "", "discard_local":
		return syncclient.DiscardLocal, nil
	case "recover_local":
		return syncclient.RecoverLocal, nil
	case "recover_or_discard":
		return syncclient.RecoverOrDiscard, nil
	default:
		return 0, &ErrInvalidConfig{Field: "sync.reset_mode", Reason: fmt.Sprintf("unrecognized value %q", raw)}
	}
}
