package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mailscan-to-drive/resolve"
)

type fakeSecrets map[string]string

func (f fakeSecrets) Get(key string) (string, error) {
	if v, ok := f[key]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func load(t *testing.T, opts LoadOptions, args ...string) (Config, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	require.NoError(t, RegisterFlags(cmd))
	args = append([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")}, args...)
	require.NoError(t, cmd.ParseFlags(args))
	return LoadConfig(cmd, opts)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"MAILSCAN_API_KEY", LegacyAPIKeyEnv, "MAILSCAN_PAGE_SIZE", "MAILSCAN_MATCH_POLICY", "MAILSCAN_EXCLUDE_RECIPIENT"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := load(t, LoadOptions{RequireAPIKey: true}, "--api-key", "sk-1")
	require.NoError(t, err)

	assert.Equal(t, "sk-1", cfg.APIKey)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, "completed", cfg.Status)
	assert.Equal(t, DestinationDrive, cfg.Destination)
	assert.Equal(t, "strict", cfg.MatchPolicy)
	assert.Equal(t, resolve.DefaultFolderName, cfg.DefaultFolder)
	assert.Equal(t, "sqlite", cfg.Ledger)
	assert.Equal(t, "db.sqlite3", filepath.Base(cfg.LedgerDSN))
	assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Nil(t, cfg.IncludeRecipient)
	assert.Nil(t, cfg.ExcludeRecipient)
}

func TestLoadConfig_EnvAndPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAILSCAN_API_KEY", "from-env")
	t.Setenv("MAILSCAN_PAGE_SIZE", "25")
	t.Setenv("MAILSCAN_MATCH_POLICY", "best")

	cfg, err := load(t, LoadOptions{RequireAPIKey: true}, "--match-policy", "strict")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, "strict", cfg.MatchPolicy, "flag beats env")
}

func TestLoadConfig_LegacyAPIKeyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(LegacyAPIKeyEnv, "legacy")

	cfg, err := load(t, LoadOptions{RequireAPIKey: true})
	require.NoError(t, err)
	assert.Equal(t, "legacy", cfg.APIKey)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	clearEnv(t)
	t.Cleanup(func() { _ = os.Unsetenv(LegacyAPIKeyEnv) })

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(LegacyAPIKeyEnv+"=dotenv-key\n"), 0o600))

	cfg, err := load(t, LoadOptions{RequireAPIKey: true}, "--env-file", envFile)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-key", cfg.APIKey)
}

func TestLoadConfig_ConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "mailscan.yaml")
	content := `
api-key: file-key
ledger: memory
root-folder-id: abc123
recursive: true
exclude-recipient:
  - "^Unknown Recipient$"
  - "(?i)test{1,2}"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := load(t, LoadOptions{RequireAPIKey: true}, "--config", path)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.APIKey)
	assert.Equal(t, "memory", cfg.Ledger)
	assert.Equal(t, "abc123", cfg.RootFolderID)
	assert.True(t, cfg.Recursive)
	assert.Equal(t, []string{"^Unknown Recipient$", "(?i)test{1,2}"}, cfg.ExcludeRecipient)
}

func TestLoadConfig_RecipientFlagsKeepCommas(t *testing.T) {
	clearEnv(t)
	cfg, err := load(t, LoadOptions{}, "--include-recipient", "a{1,3}", "--include-recipient", "Smith, John")
	require.NoError(t, err)
	assert.Equal(t, []string{"a{1,3}", "Smith, John"}, cfg.IncludeRecipient)
}

func TestLoadConfig_RecipientEnvOnePerLine(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAILSCAN_EXCLUDE_RECIPIENT", "^Unknown Recipient$\nTest Account")

	cfg, err := load(t, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"^Unknown Recipient$", "Test Account"}, cfg.ExcludeRecipient)
}

func TestLoadConfig_KeyringFallback(t *testing.T) {
	clearEnv(t)
	secrets := fakeSecrets{"stable-api-key": "from-keyring"}

	cfg, err := load(t, LoadOptions{RequireAPIKey: true, Secrets: secrets, SecretKey: "stable-api-key"})
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", cfg.APIKey)

	cfg, err = load(t, LoadOptions{RequireAPIKey: true, Secrets: secrets, SecretKey: "stable-api-key"}, "--api-key", "flag")
	require.NoError(t, err)
	assert.Equal(t, "flag", cfg.APIKey)
}

func TestLoadConfig_APIKeyRequired(t *testing.T) {
	clearEnv(t)
	_, err := load(t, LoadOptions{RequireAPIKey: true, Secrets: fakeSecrets{}, SecretKey: "stable-api-key"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")

	_, err = load(t, LoadOptions{})
	require.NoError(t, err, "subcommands run without a key")
}

func TestLoadConfig_Validation(t *testing.T) {
	clearEnv(t)
	cases := map[string][]string{
		"ledger":      {"--ledger", "mongo"},
		"policy":      {"--match-policy", "fuzzy"},
		"threshold":   {"--match-threshold", "150"},
		"page size":   {"--page-size", "0"},
		"destination": {"--destination", "s3"},
		"local root":  {"--destination", "local"},
		"postgres":    {"--ledger", "postgres"},
		"log level":   {"--log-level", "trace"},
		"log format":  {"--log-format", "xml"},
		"filters":     {"--include-recipient", "a", "--exclude-recipient", "b"},
		"timeout":     {"--http-timeout", "0s"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := load(t, LoadOptions{}, args...)
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_NormalizesCase(t *testing.T) {
	clearEnv(t)
	cfg, err := load(t, LoadOptions{}, "--ledger", "MEMORY", "--log-level", "WARNING", "--destination", "Local", "--local-root", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Ledger)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, DestinationLocal, cfg.Destination)
}
