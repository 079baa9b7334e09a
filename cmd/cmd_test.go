package cmd

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mailscan-to-drive/config"
	"github.com/dhcgn/mailscan-to-drive/credential"
	"github.com/dhcgn/mailscan-to-drive/destination"
	"github.com/dhcgn/mailscan-to-drive/ledger"
)

type memKeyring map[string]string

func (m memKeyring) Get(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m memKeyring) Set(key, value string) error { m[key] = value; return nil }
func (m memKeyring) Delete(key string) error { delete(m, key); return nil }

func testEnv(kr Keyring) Env {
	return Env{
		Keyring: kr,
		Store: func(_ context.Context, cfg config.Config, _ *slog.Logger) (destination.Store, error) {
			return destination.NewLocal(cfg.LocalRoot, 0)
		},
		Ledger: func(ctx context.Context, cfg config.Config, logger *slog.Logger) (ledger.Ledger, error) {
			return ledger.Open(ctx, ledger.Options{Backend: ledger.Backend(cfg.Ledger), DSN: cfg.LedgerDSN, StateDir: cfg.StateDir}, logger)
		},
	}
}

func execute(t *testing.T, env Env, stdin string, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "mailscan-to-drive", SilenceUsage: true, SilenceErrors: true}
	require.NoError(t, config.RegisterFlags(root))
	AddCommands(root, env)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args, "--env-file", ""))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLedgerCmd(t *testing.T) {
	stateDir := t.TempDir()
	l, err := ledger.NewFileLedger(stateDir, nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, "m1", "John Smith"))
	require.NoError(t, l.Record(ctx, "m2", "John Smith"))
	require.NoError(t, l.Record(ctx, "m3", "Jane Doe"))
	require.NoError(t, l.Close())

	csvPath := filepath.Join(t.TempDir(), "reports", "ledger.csv")
	out, err := execute(t, testEnv(nil), "", "ledger", "--ledger", "file", "--state-dir", stateDir, "--csv", csvPath)
	require.NoError(t, err)

	assert.Contains(t, out, "3 processed mail items in file ledger")
	assert.Contains(t, out, "m2")
	assert.Contains(t, out, "1. John Smith (2)")
	assert.Contains(t, out, "2. Jane Doe (1)")

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "mail_id,recipient_name,processed_at", lines[0])
}

func TestLedgerCmd_Empty(t *testing.T) {
	out, err := execute(t, testEnv(nil), "", "ledger", "--ledger", "memory")
	require.NoError(t, err)
	assert.Contains(t, out, "0 processed mail items in memory ledger")
}

func TestMatchCmd(t *testing.T) {
	root := t.TempDir()
	store, err := destination.NewLocal(root, 0)
	require.NoError(t, err)
	for _, name := range []string{"John Smith", "Smith Household", "Acme Corp"} {
		_, err := store.CreateFolder(context.Background(), name, destination.LocalRootID)
		require.NoError(t, err)
	}

	out, err := execute(t, testEnv(nil), "", "match", "--destination", "local", "--local-root", root,
		"--root-folder-id", destination.LocalRootID, "--ledger", "memory", "John", "Smith")
	require.NoError(t, err)

	assert.Contains(t, out, `"John Smith" against 3 folders (policy strict, threshold 90)`)
	assert.Contains(t, out, "Smith Household")
	assert.Contains(t, out, `Decision: matched "John Smith" (score 100)`)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "match never creates folders")
}

func TestMatchCmd_BestPolicyWouldCreate(t *testing.T) {
	root := t.TempDir()
	out, err := execute(t, testEnv(nil), "", "match", "--destination", "local", "--local-root", root,
		"--ledger", "memory", "--match-policy", "best", "Jane Doe")
	require.NoError(t, err)
	assert.Contains(t, out, `Decision: create folder "Jane Doe"`)
}

func TestCredentialCmd(t *testing.T) {
	kr := memKeyring{}

	out, err := execute(t, testEnv(kr), "sk-secret\n", "credential", "set")
	require.NoError(t, err)
	assert.Contains(t, out, "API key stored")
	assert.Equal(t, "sk-secret", kr[credential.APIKeyName])

	out, err = execute(t, testEnv(kr), "", "credential", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "API key stored")

	_, err = execute(t, testEnv(kr), "", "credential", "delete")
	require.NoError(t, err)
	assert.Empty(t, kr)

	_, err = execute(t, testEnv(kr), "\n", "credential", "set")
	require.Error(t, err)
}
