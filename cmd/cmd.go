// Package cmd holds the auxiliary subcommands of mailscan-to-drive.
package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mailscan-to-drive/config"
	"github.com/dhcgn/mailscan-to-drive/credential"
	"github.com/dhcgn/mailscan-to-drive/destination"
	"github.com/dhcgn/mailscan-to-drive/ledger"
)

// Env carries the composition functions the root command also uses, so
// subcommands build their dependencies the same way.
type Env struct {
	Secrets config.SecretSource
	Logger  func(cfg config.Config) (*slog.Logger, func() error, error)
	Store   func(ctx context.Context, cfg config.Config, logger *slog.Logger) (destination.Store, error)
	Ledger  func(ctx context.Context, cfg config.Config, logger *slog.Logger) (ledger.Ledger, error)
	// Keyring backs the credential subcommand.
	Keyring Keyring
}

type Keyring interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// AddCommands registers every subcommand on root.
func AddCommands(root *cobra.Command, env Env) {
	root.AddCommand(
		newLedgerCmd(env),
		newMatchCmd(env),
		newCredentialCmd(env),
	)
}

func (e Env) load(cmd *cobra.Command) (config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.LoadConfig(cmd, config.LoadOptions{Secrets: e.Secrets, SecretKey: credential.APIKeyName})
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	if e.Logger == nil {
		return cfg, slog.New(slog.DiscardHandler), func() error { return nil }, nil
	}
	logger, cleanup, err := e.Logger(cfg)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	return cfg, logger, cleanup, nil
}
