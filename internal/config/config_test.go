package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func env(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, "58.0", cfg.APIVersion)
	assert.True(t, cfg.ObfuscateFields)
	assert.True(t, cfg.ProtectCustomFields)
	assert.True(t, cfg.ProtectStandardFields)
	assert.True(t, cfg.ProtectSensitiveFields)
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	content := "model: gpt-4o\nprotect_standard_fields: false\ntimeout: 90s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.False(t, cfg.ProtectStandardFields)
	assert.True(t, cfg.ProtectCustomFields, "unset keys keep their defaults")
	assert.Equal(t, 90*time.Second, cfg.Timeout)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("model: [unclosed"), 0600))
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	cfg := Default()
	cfg.Model = "gpt-4.1-mini"
	cfg.ObfuscateFields = false
	cfg.Timeout = 2 * time.Minute
	require.NoError(t, Save(dir, cfg))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(env(map[string]string{
		"SFEXPLAIN_MODEL":     "gpt-4o",
		"OPENAI_BASE_URL":     "http://localhost:11434",
		"SFEXPLAIN_OBFUSCATE": "false",
	})))
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "http://localhost:11434", cfg.OpenAIBaseURL)
	assert.False(t, cfg.ObfuscateFields)
	assert.Equal(t, "58.0", cfg.APIVersion)

	assert.Error(t, Default().ApplyEnv(env(map[string]string{"SFEXPLAIN_OBFUSCATE": "sometimes"})))
}

func TestApplyFlagsOnlyWhenChanged(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--obfuscate=false", "--timeout=5s"}))

	cfg := Default()
	cfg.Model = "from-file"
	require.NoError(t, cfg.ApplyFlags(fs))
	assert.Equal(t, "from-file", cfg.Model)
	assert.False(t, cfg.ObfuscateFields)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestSet(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Set("protect_sensitive_fields", "false"))
	assert.False(t, cfg.ProtectSensitiveFields)

	require.NoError(t, cfg.Set("timeout", "2m"))
	assert.Equal(t, 2*time.Minute, cfg.Timeout)

	require.NoError(t, cfg.Set("api_version", "60.0"))
	assert.Equal(t, "60.0", cfg.APIVersion)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)

	assert.Error(t, cfg.Set("no_such_key", "x"))
	assert.Error(t, cfg.Set("session_cache", "disk"))
	assert.Error(t, cfg.Set("api_version", "12.0"))
}

func TestEntries(t *testing.T) {
	entries := Default().Entries()
	require.Len(t, entries, 12)
	assert.Equal(t, Entry{"model", "gpt-4o-mini"}, entries[0])
	assert.Equal(t, Entry{"timeout", "1m0s"}, entries[10])
}

func TestExplainOptions(t *testing.T) {
	cfg := Default()
	cfg.ProtectStandardFields = false
	opts := cfg.ExplainOptions()
	assert.True(t, opts.Obfuscate)
	assert.True(t, opts.Protection.ProtectCustom)
	assert.False(t, opts.Protection.ProtectStandard)
	assert.True(t, opts.Protection.ProtectSensitive)
}

func TestAPIKey(t *testing.T) {
	keyring.MockInit()

	k, src, err := APIKey(env(nil))
	require.NoError(t, err)
	assert.Empty(t, k)
	assert.Equal(t, SourceNone, src)

	require.NoError(t, SetAPIKey("sk-stored"))
	k, src, err = APIKey(env(nil))
	require.NoError(t, err)
	assert.Equal(t, "sk-stored", k)
	assert.Equal(t, SourceKeyring, src)

	k, src, err = APIKey(env(map[string]string{APIKeyEnv: "sk-env"}))
	require.NoError(t, err)
	assert.Equal(t, "sk-env", k)
	assert.Equal(t, SourceEnv, src)

	require.NoError(t, DeleteAPIKey())
	require.NoError(t, DeleteAPIKey())
	k, _, err = APIKey(env(nil))
	require.NoError(t, err)
	assert.Empty(t, k)

	assert.Error(t, SetAPIKey("  "))
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "********abcd", MaskKey("sk-1234abcd"))
	assert.Equal(t, "***", MaskKey("abc"))
}
