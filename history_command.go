package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nijaru/yt-transcript/db"
	"github.com/nijaru/yt-transcript/handlers"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var prune time.Duration
	var format string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent lookups served by the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			out, err := outputFormat(format, cmd.OutOrStdout(), formatJSON, formatTable)
			if err != nil {
				return err
			}
			if limit <= 0 {
				return fmt.Errorf("--limit must be greater than 0")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Database.Path == "" {
				return fmt.Errorf("lookup log is disabled (database path is empty)")
			}

			store, err := db.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			if prune > 0 {
				n, err := store.Prune(cmd.Context(), time.Now().Add(-prune))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Pruned %d lookups older than %s\n", n, prune)
			}

			lookups, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			if out == formatJSON {
				return writeJSON(cmd, handlers.LookupsResponse{Lookups: lookups, Stats: stats})
			}
			w := cmd.OutOrStdout()
			if len(lookups) == 0 {
				fmt.Fprintln(w, "No lookups recorded")
				return nil
			}
			fmt.Fprintln(w, renderLookups(lookups))
			fmt.Fprintln(w, renderStats(stats))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of lookups to show")
	cmd.Flags().DurationVar(&prune, "prune", 0, "Delete lookups older than this before listing (e.g. 720h)")
	cmd.Flags().StringVar(&format, "format", "", "Output format: json or table")
	return cmd
}

func renderLookups(lookups []db.Lookup) string {
	rows := make([][]string, 0, len(lookups))
	for _, l := range lookups {
		track := l.TrackLanguage
		if l.TrackKind != "" {
			track += " (" + l.TrackKind + ")"
		}
		rows = append(rows, []string{
			strconv.FormatInt(l.ID, 10),
			l.CreatedAt.Local().Format(time.DateTime),
			l.VideoID,
			l.Language,
			track,
			l.Match,
			strconv.Itoa(l.CueCount),
			l.Outcome,
			l.Duration.String(),
		})
	}
	return renderTable(
		[]string{"ID", "Time", "Video", "Lang", "Track", "Match", "Cues", "Outcome", "Took"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
	)
}

func renderStats(stats []db.OutcomeCount) string {
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{s.Outcome, strconv.Itoa(s.Count)})
	}
	return renderTable([]string{"Outcome", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}
