package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/ranger/internal/domain"
)

type cycleReport struct {
	Snapshot   *domain.Metrics               `json:"snapshot"`
	Proposed   []domain.ModificationProposal `json:"proposed"`
	Applied    []uuid.UUID                   `json:"applied"`
	Rejected   []uuid.UUID                   `json:"rejected"`
	RolledBack []uuid.UUID                   `json:"rolled_back"`
}

func newImproveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "improve",
		Short: "Run one self-improvement cycle now",
		Long: `Run one self-improvement cycle: check earlier changes for regressions,
draft proposals from the current metrics, validate them and, when the server
has auto-apply on, apply them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var report cycleReport
			if err := opts.call("POST", "/v1/admin/improve", nil, &report); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), report)
			}

			out := cmd.OutOrStdout()
			if m := report.Snapshot; m != nil {
				fmt.Fprintf(out, "Latency %.2fs  verification failures %.0f%%  satisfaction %.2f  errors %.0f%%\n",
					m.AvgLatencySeconds, 100*m.VerificationFailureRate, m.Satisfaction, 100*m.ErrorRate)
			}
			fmt.Fprintf(out, "Proposed %d, applied %d, rejected %d, rolled back %d\n",
				len(report.Proposed), len(report.Applied), len(report.Rejected), len(report.RolledBack))
			if len(report.Proposed) > 0 {
				return printProposals(cmd, report.Proposed)
			}
			return nil
		},
	}
}

type proposalsResponse struct {
	Proposals []domain.ModificationProposal `json:"proposals"`
	Count     int                           `json:"count"`
}

func newProposalsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proposals",
		Short: "Review modification proposals",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List proposals, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/admin/proposals"
			if status != "" {
				path += "?status=" + status
			}
			var resp proposalsResponse
			if err := opts.call("GET", path, nil, &resp); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			if resp.Count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No proposals.")
				return nil
			}
			return printProposals(cmd, resp.Proposals)
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status: proposed, validated, applied, rolled_back, rejected")

	apply := &cobra.Command{
		Use:   "apply <id>",
		Short: "Apply a validated proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid proposal id %q", args[0])
			}
			var res domain.ApplyResult
			if err := opts.call("POST", "/v1/admin/proposals/"+id.String()+"/apply", nil, &res); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %s to %s (backup %s)\n", id, res.Target, res.BackupID)
			return nil
		},
	}

	var reason string
	rollback := &cobra.Command{
		Use:   "rollback <id>",
		Short: "Roll back an applied proposal",
		Long: `Roll back an applied proposal by restoring the backup taken when it was
applied. Proposals applied later to the same target are rolled back too.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid proposal id %q", args[0])
			}
			var resp struct {
				RolledBack []uuid.UUID `json:"rolled_back"`
			}
			body := map[string]string{"reason": reason}
			if err := opts.call("POST", "/v1/admin/proposals/"+id.String()+"/rollback", body, &resp); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			for _, rid := range resp.RolledBack {
				fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %s\n", rid)
			}
			return nil
		},
	}
	rollback.Flags().StringVar(&reason, "reason", "", "reason recorded on the proposal")

	cmd.AddCommand(list, apply, rollback)
	return cmd
}

func printProposals(cmd *cobra.Command, proposals []domain.ModificationProposal) error {
	w := newTable(cmd.OutOrStdout())
	fmt.Fprintln(w, "ID\tSTATUS\tCATEGORY\tRISK\tTARGET\tRATIONALE")
	for _, p := range proposals {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			p.ID, p.Status, p.Category, p.RiskScore, p.TargetLocation, truncate(p.Rationale, 60))
	}
	return w.Flush()
}
