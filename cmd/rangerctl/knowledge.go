package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/ranger/internal/domain"
)

func newKnowledgeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Inspect and transfer the knowledge store",
	}

	var outFile string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export every live knowledge item as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var export domain.KnowledgeExport
			if err := opts.call("GET", "/v1/admin/knowledge/export", nil, &export); err != nil {
				return err
			}
			if outFile == "" || outFile == "-" {
				return printJSON(cmd.OutOrStdout(), export)
			}
			f, err := os.Create(outFile)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", outFile, err)
			}
			if err := printJSON(f, export); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d items to %s\n", export.TotalItems, outFile)
			return nil
		},
	}
	export.Flags().StringVarP(&outFile, "out", "o", "", "write to a file instead of stdout")

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import an export file; existing keys are skipped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			var err error
			if args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			var export domain.KnowledgeExport
			if err := json.Unmarshal(raw, &export); err != nil {
				return fmt.Errorf("invalid export file: %w", err)
			}

			var res domain.ImportResult
			if err := opts.call("POST", "/v1/admin/knowledge/import", export, &res); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d, skipped %d\n", res.Imported, res.Skipped)
			return nil
		},
	}

	consolidate := &cobra.Command{
		Use:   "consolidate",
		Short: "Merge near-duplicate knowledge items now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res domain.ConsolidationResult
			if err := opts.call("POST", "/v1/admin/knowledge/consolidate", nil, &res); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Examined %d, merged %d\n", res.Examined, res.Merged)
			for _, m := range res.Merges {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s -> %s (%.2f)\n", m.SourceKey, m.TargetKey, m.Score)
			}
			return nil
		},
	}

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Remove merged-away items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res map[string]int64
			if err := opts.call("POST", "/v1/admin/knowledge/prune", nil, &res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d\n", res["pruned"])
			return nil
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st domain.KnowledgeStats
			if err := opts.call("GET", "/v1/knowledge/stats", nil, &st); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), st)
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintf(w, "Total\t%d\n", st.Total)
			fmt.Fprintf(w, "Average confidence\t%.3f\n", st.AverageConfidence)
			fmt.Fprintf(w, "Tombstones\t%d\n", st.Tombstones)
			for _, s := range []domain.VerificationStatus{domain.StatusVerified, domain.StatusUnverified, domain.StatusPendingVerification, domain.StatusRejected} {
				fmt.Fprintf(w, "%s\t%d\n", s, st.ByStatus[s])
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(export, importCmd, consolidate, prune, stats)
	return cmd
}
