package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nijaru/yt-transcript/captions"
	"github.com/nijaru/yt-transcript/handlers"
	"github.com/nijaru/yt-transcript/validation"
)

func newTracksCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "tracks <video>",
		Short: "List the caption tracks of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			out, err := outputFormat(format, cmd.OutOrStdout(), formatJSON, formatTable)
			if err != nil {
				return err
			}
			videoID, err := validation.NormalizeVideoID(args[0])
			if err != nil {
				return err
			}

			retriever, err := ctx.newRetriever()
			if err != nil {
				return err
			}
			catalog, err := retriever.ListTracks(cmd.Context(), videoID)
			if err != nil {
				return err
			}

			if out == formatJSON {
				return writeJSON(cmd, handlers.TracksResponse{VideoID: videoID, Tracks: catalog.Tracks()})
			}
			if catalog.IsEmpty() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has no caption tracks\n", videoID)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTracks(catalog.Tracks()))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Output format: json or table")
	return cmd
}

func renderTracks(tracks []captions.Track) string {
	rows := make([][]string, 0, len(tracks))
	for _, t := range tracks {
		rows = append(rows, []string{t.LanguageCode, t.Kind.String(), t.Name, strconv.FormatBool(t.Translatable), t.Key()})
	}
	return renderTable([]string{"Language", "Kind", "Name", "Translatable", "Key"}, rows, nil)
}
