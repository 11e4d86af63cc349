package main

import (
	"encoding/json"
	"fmt"

	"github.com/go-go-golems/veriwire/pkg/audit"
	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var (
		db     string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "events [call-id]",
		Short: "Print recorded audit events for a call, or list recent calls",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := audit.SQLiteDSNForFile(db)
			if err != nil {
				return err
			}
			store, err := audit.NewSQLiteStore(dsn)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			if len(args) == 0 {
				sessions, err := store.ListSessions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				for _, s := range sessions {
					if asJSON {
						if err := enc.Encode(s); err != nil {
							return err
						}
						continue
					}
					_, _ = fmt.Fprintf(out, "%s  %s\n", s.CreatedAt.Format("2006-01-02 15:04:05"), s.CallID)
				}
				return nil
			}

			events, err := store.ListEvents(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			for _, ev := range events {
				if asJSON {
					if err := enc.Encode(ev); err != nil {
						return err
					}
					continue
				}
				_, _ = fmt.Fprintf(out, "%s  %-16s %s\n", ev.CreatedAt.Format("15:04:05.000"), ev.Kind, ev.Data)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&db, "db", "veriwire.db", "sqlite audit log file")
	f.IntVar(&limit, "limit", 200, "maximum rows to print")
	f.BoolVar(&asJSON, "json", false, "print one JSON object per line")
	return cmd
}
