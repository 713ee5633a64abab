package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/soltide/vrf-oracle/internal/core/config"
	"github.com/soltide/vrf-oracle/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent fulfillment attempts from the journal",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		slog.Error("status requires a database journal (database.url is empty)")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	attempts, err := postgres.NewJournalRepo(db).Recent(ctx, 50)
	if err != nil {
		slog.Error("Failed to query journal", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "REQUEST\tSTATE\tSIGNATURE\tUPDATED")

	for _, a := range attempts {
		sig := a.TxSignature
		if len(sig) > 16 {
			sig = sig[:16] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			a.RequestAddress, a.State, sig, a.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	_ = w.Flush()
}
