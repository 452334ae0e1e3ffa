package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

func applyCmd() *cobra.Command {
	var (
		file      string
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a file of newline-delimited order events to the store",
		Long: `Apply reads one JSON order event per line and projects them in file order.
Each batch is atomic: a malformed event or a failed write rolls its whole
batch back and stops the run. Use --file - to read stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), file, batchSize)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Events file, one JSON object per line")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "Events per transaction (0 = whole file)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runApply(ctx context.Context, in io.Reader, out io.Writer, file string, batchSize int) error {
	cfg, flush, err := setup(ctx)
	if err != nil {
		return err
	}
	defer flush()

	payloads, err := readEvents(file, in)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := applyBatches(ctx, newCoordinator(store, cfg), payloads, batchSize)
	if err != nil {
		slog.Error("Apply stopped", "committed_batches", n, "error", err)
		return err
	}
	fmt.Fprintf(out, "applied %d events in %d batches\n", len(payloads), n)
	return nil
}
