package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/hallshelf/hallshelf/internal/config"
	"github.com/hallshelf/hallshelf/internal/database/inventory"
	"github.com/hallshelf/hallshelf/internal/entrypoint"
)

type ReconcileCommand struct {
	Config       *config.Config
	DatabasePath string
	All          bool
	JSON         bool
	Out          io.Writer
}

func NewReconcileCommand() *ReconcileCommand {
	return &ReconcileCommand{Out: os.Stdout}
}

func (cmd *ReconcileCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)

	fs.StringVar(&cmd.DatabasePath, "db", "", "Path to the SQLite database (defaults to DATABASE_PATH)")
	fs.BoolVar(&cmd.All, "all", false, "List every collection, not only mismatched ones")
	fs.BoolVar(&cmd.JSON, "json", false, "Print the report as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s reconcile [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Compare stock counts against outstanding and lost lendings.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	return fs.Parse(args)
}

func (cmd *ReconcileCommand) Run() error {
	cfg := loadConfig(cmd.Config, cmd.DatabasePath)

	services, err := entrypoint.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer services.Close()

	rows, err := services.Manager.Reconcile(context.Background(), cmd.All)
	if err != nil {
		return fmt.Errorf("failed to reconcile inventory: %w", err)
	}

	if cmd.JSON {
		enc := json.NewEncoder(cmd.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	return writeReport(cmd.Out, rows)
}

func writeReport(out io.Writer, rows []inventory.ReconcileRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(out, "No discrepancies found")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBOOK\tHALL\tTOTAL\tAVAILABLE\tOUT\tLOST\tDISCREPANCY")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			r.CollectionID, r.BookTitle, r.HallName,
			r.TotalCopies, r.AvailableCopies, r.Outstanding, r.Lost, r.Discrepancy)
	}
	return w.Flush()
}
