package main

import (
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Harshitk-cp/ranger/internal/domain"
)

func newBackupsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "Manage backups of modifiable files",
	}

	var target string
	list := &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/admin/backups"
			if target != "" {
				path += "?target=" + url.QueryEscape(target)
			}
			var resp struct {
				Backups []domain.Backup `json:"backups"`
				Count   int             `json:"count"`
			}
			if err := opts.call("GET", path, nil, &resp); err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			if resp.Count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No backups.")
				return nil
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tTARGET\tSIZE\tCREATED")
			for _, b := range resp.Backups {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", b.ID, b.Target, b.Size, b.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&target, "target", "", "only backups of this target")

	create := &cobra.Command{
		Use:   "create <target>",
		Short: "Back up a file under the modifiable root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var b domain.Backup
			if err := opts.call("POST", "/v1/admin/backups", map[string]string{"target": args[0]}, &b); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created backup %s of %s\n", b.ID, b.Target)
			return nil
		},
	}

	restore := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a backup over its target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid backup id %q", args[0])
			}
			var b domain.Backup
			if err := opts.call("POST", "/v1/admin/backups/"+id.String()+"/restore", nil, &b); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s from %s\n", b.Target, shortID(b.ID))
			return nil
		},
	}

	var olderThan string
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Drop old backups, keeping the newest per target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res map[string]int64
			if err := opts.call("POST", "/v1/admin/backups/prune", map[string]string{"older_than": olderThan}, &res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d\n", res["pruned"])
			return nil
		},
	}
	prune.Flags().StringVar(&olderThan, "older-than", "720h", "minimum backup age")

	cmd.AddCommand(list, create, restore, prune)
	return cmd
}
