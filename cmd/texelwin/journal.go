// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/texelwin/journal.go
// Summary: Dumps recent journal entries.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/framegrace/texelwin/internal/journal"
)

func journalCmd() *cobra.Command {
	var (
		path   string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent reallocations and client sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, _, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				path = cfg.Journal.Path
			}
			if path == "" {
				return errors.New("no journal configured (set journal.path or pass --path)")
			}
			j, err := journal.Open(path, journal.Options{})
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tKIND\tCLIENT\tWINDOW\tTRIGGER\tACKS\tWAIT\tGRANTED\tEXPOSED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%d\t%d\n",
					e.Time.Format(time.RFC3339Nano), e.Kind, clientLabel(e), windowLabel(e),
					e.Trigger, e.Acks, e.Wait, e.Granted, e.Exposed)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Journal database (default journal.path from the config)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func clientLabel(e journal.Entry) string {
	if e.Client == 0 {
		return "-"
	}
	if e.Name != "" {
		return fmt.Sprintf("%d (%s)", e.Client, e.Name)
	}
	return fmt.Sprint(e.Client)
}

func windowLabel(e journal.Entry) string {
	if e.Window == 0 {
		return "-"
	}
	return fmt.Sprint(e.Window)
}
