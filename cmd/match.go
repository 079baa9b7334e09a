package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mailscan-to-drive/destination"
	"github.com/dhcgn/mailscan-to-drive/resolve"
)

func newMatchCmd(env Env) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "match <recipient name>",
		Short: "Show how a recipient name would be matched to a folder",
		Long:  "Scores every candidate folder against the name and prints the decision of the configured match policy. Nothing is created.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := env.load(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			store, err := env.Store(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("open destination: %w", err)
			}

			resolver, err := resolve.New(destination.DryRun(store, logger), resolve.Options{
				Policy:            resolve.Policy(cfg.MatchPolicy),
				Threshold:         cfg.MatchThreshold,
				DefaultFolderName: cfg.DefaultFolder,
				RootID:            cfg.RootFolderID,
				Recursive:         cfg.Recursive,
			}, logger)
			if err != nil {
				return err
			}

			name := strings.Join(args, " ")
			exp, err := resolver.Explain(cmd.Context(), name)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%q against %d folders (policy %s, threshold %d)\n\n", name, len(exp.Candidates), exp.Policy, exp.Threshold)

			if len(exp.Candidates) > 0 {
				shown := exp.Candidates
				if top > 0 && len(shown) > top {
					shown = shown[:top]
				}
				data := pterm.TableData{{"Score", "Folder", "ID"}}
				for _, c := range shown {
					data = append(data, []string{strconv.Itoa(c.Score), c.Folder.Name, c.Folder.ID})
				}
				table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, table)
			}

			fmt.Fprintf(out, "Decision: %s\n", describe(exp, name))
			return nil
		},
	}

	cmd.Flags().IntVarP(&top, "top", "t", 10, "Number of candidates to display (0: all)")
	return cmd
}

func describe(exp resolve.Explanation, name string) string {
	switch {
	case exp.Match != nil:
		return fmt.Sprintf("matched %q (score %d)", exp.Match.Folder.Name, exp.Match.Score)
	case exp.CreateFolder:
		return fmt.Sprintf("create folder %q", name)
	case len(exp.Ambiguous) > 0:
		return fmt.Sprintf("ambiguous (%d candidates), default folder %q", len(exp.Ambiguous), exp.DefaultFolder.Name)
	default:
		return fmt.Sprintf("no match, default folder %q", exp.DefaultFolder.Name)
	}
}
