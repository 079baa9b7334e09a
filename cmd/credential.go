package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mailscan-to-drive/credential"
)

func newCredentialCmd(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage the Stable API key in the OS keyring",
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Store the API key read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if env.Keyring == nil {
				return errors.New("no keyring configured")
			}
			fmt.Fprint(cmd.ErrOrStderr(), "API key: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read api key: %w", err)
			}
			key := strings.TrimSpace(line)
			if key == "" {
				return errors.New("empty api key")
			}
			if err := env.Keyring.Set(credential.APIKeyName, key); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key stored")
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if env.Keyring == nil {
				return errors.New("no keyring configured")
			}
			if err := env.Keyring.Delete(credential.APIKeyName); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key removed")
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Report whether an API key is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if env.Keyring == nil {
				return errors.New("no keyring configured")
			}
			if _, err := env.Keyring.Get(credential.APIKeyName); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "no API key stored (%v)\n", err)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key stored")
			return nil
		},
	}

	cmd.AddCommand(set, del, status)
	return cmd
}
