package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"notebot/pkg/export"
	"notebot/pkg/repository"
)

var (
	listLimit      int
	exportLimit    int
	outputFilePath string
)

func init() {
	callsListCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "maximum number of records")
	callsExportCmd.Flags().IntVarP(&exportLimit, "limit", "n", 1000, "maximum number of records")
	callsExportCmd.Flags().StringVarP(&outputFilePath, "outputFilePath", "o", "", "set outputFilePath")
	callsExportCmd.MarkFlagRequired("outputFilePath")

	callsCmd.AddCommand(callsListCmd)
	callsCmd.AddCommand(callsGetCmd)
	callsCmd.AddCommand(callsExportCmd)
}

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Inspect stored call records",
}

var callsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent call records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(cmd, func(repo repository.Repository) error {
			records, err := repo.List(cmd.Context(), listLimit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tCALL TYPE\tTITLE\tCOST")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t$%.4f\n",
					r.ID, r.CreatedAt.Format(time.RFC3339), r.CallType, r.Title, r.TokenUsage.Total())
			}
			return w.Flush()
		})
	},
}

var callsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print one call record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(cmd, func(repo repository.Repository) error {
			record, err := repo.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(record)
		})
	},
}

var callsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export call records to excel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(cmd, func(repo repository.Repository) error {
			records, err := repo.List(cmd.Context(), exportLimit)
			if err != nil {
				return err
			}
			if err := export.ToExcel(records, outputFilePath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export finished, exported %d records to %v\n", len(records), outputFilePath)
			return nil
		})
	},
}

func withRepository(cmd *cobra.Command, fn func(repository.Repository) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return err
	}
	repo, err := openRepository(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(repo)
}
