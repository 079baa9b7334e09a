package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mailscan-to-drive/model"
	"github.com/dhcgn/mailscan-to-drive/stats"
)

func newLedgerCmd(env Env) *cobra.Command {
	var (
		csvPath string
		limit   int
		topN    int
	)

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "List mail items already delivered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := env.load(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			led, err := env.Ledger(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer func() { _ = led.Close() }()

			records, err := led.Records(cmd.Context())
			if err != nil {
				return fmt.Errorf("list records: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d processed mail items in %s ledger\n\n", len(records), cfg.Ledger)

			if len(records) > 0 {
				shown := records
				if limit > 0 && len(shown) > limit {
					shown = shown[:limit]
				}
				table, err := renderRecords(shown)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, table)

				byRecipient := make(map[string]int)
				for _, rec := range records {
					name := rec.RecipientName
					if name == "" {
						name = "(not recorded)"
					}
					byRecipient[name]++
				}
				fmt.Fprintf(out, "Top %d recipients:\n", topN)
				stats.PrintTop(out, byRecipient, topN)
			}

			if csvPath != "" {
				if err := saveCSV(csvPath, records); err != nil {
					return fmt.Errorf("error saving CSV report: %w", err)
				}
				fmt.Fprintf(out, "\nReport saved to: %s\n", csvPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "Also write every record to this CSV file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of records to print (0: all)")
	cmd.Flags().IntVarP(&topN, "top", "t", 10, "Number of top recipients to display")
	return cmd
}

func renderRecords(records []model.ProcessedRecord) (string, error) {
	data := pterm.TableData{{"Mail ID", "Recipient", "Processed at"}}
	for _, rec := range records {
		data = append(data, []string{rec.MailID, rec.RecipientName, rec.ProcessedAt.Local().Format(time.DateTime)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

func saveCSV(path string, records []model.ProcessedRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := writeCSV(file, records); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func writeCSV(w io.Writer, records []model.ProcessedRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"mail_id", "recipient_name", "processed_at"}); err != nil {
		return err
	}
	for _, rec := range records {
		if err := writer.Write([]string{rec.MailID, rec.RecipientName, rec.ProcessedAt.UTC().Format(time.RFC3339)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
