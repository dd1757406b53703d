package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DefaultDataDir, cfg.Data.Dir)
	assert.Equal(t, DefaultReaperSchedule, cfg.Reaper.Schedule)
	assert.Equal(t, DefaultRecordTTL, cfg.Verify.RecordTTL.Std())
	assert.Equal(t, 25565, cfg.Minecraft.Port)
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[log]
level = "debug"

[discord]
token = "token-123"
guild_id = "100"
whitelisted_role_id = "300"

[verify]
code_ttl = "10m"

[verify.domains]
"student.le.ac.uk" = "200"
"leicester.ac.uk" = "200"
"dmu.ac.uk" = "201"

[mcsmanager]
host = "http://127.0.0.1:23333"
api_key = "key"
daemon_id = "d1"
instance_id = "i1"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "token-123", cfg.Discord.Token)
	assert.Equal(t, "200", cfg.Verify.Domains["student.le.ac.uk"])
	assert.Equal(t, 10*time.Minute, cfg.Verify.CodeTTL.Std())
	// record_ttl untouched keeps its default
	assert.Equal(t, DefaultRecordTTL, cfg.Verify.RecordTTL.Std())
	assert.ElementsMatch(t, []string{"200", "201"}, cfg.Verify.VerifiedRoleIDs())
	assert.Equal(t, "http://127.0.0.1:23333", cfg.MCSManager.Host)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[verify]\ncode_ttl = \"soon\"\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
