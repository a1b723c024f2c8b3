package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"smfdb/internal/syncclient"
)

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(strings.NewReader(`
[database]
path = "library.smfdb"
`))
	require.NoError(t, err)
	require.Equal(t, "library.smfdb", cfg.Open.Path)
	require.Nil(t, cfg.Sync)
}

func TestLoadWithSync(t *testing.T) {
	cfg, err := Load(strings.NewReader(`
[database]
path = "library.smfdb"

[sync]
server_url = "https://sync.example.com"
realm_path = "library.realm"
reset_mode = "recover_or_discard"
timeout_seconds = 10
`))
	require.NoError(t, err)
	require.NotNil(t, cfg.Sync)
	require.Equal(t, syncclient.RecoverOrDiscard, cfg.Sync.ResetMode)
	require.Equal(t, 10e9, float64(cfg.Sync.Timeout))
}

func TestLoadRejectsEmptyPath(t *testing.T) {
	_, err := Load(strings.NewReader(`[database]
path = ""
`))
	require.Error(t, err)
	var invalid *ErrInvalidConfig
	require.ErrorAs(t, err, &invalid)
}

func TestLoadRejectsUnknownResetMode(t *testing.T) {
	_, err := Load(strings.NewReader(`
[database]
path = "library.smfdb"

[sync]
server_url = "https://sync.example.com"
realm_path = "library.realm"
reset_mode = "explode"
`))
	require.Error(t, err)
}
