package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nijaru/yt-transcript/captions"
	"github.com/nijaru/yt-transcript/utils"
	"github.com/nijaru/yt-transcript/validation"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var lang string
	var format string

	cmd := &cobra.Command{
		Use:   "fetch <video>",
		Short: "Fetch the transcript of a video",
		Long:  "Fetch the transcript of a video given its ID or any YouTube URL form.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			out, err := outputFormat(format, cmd.OutOrStdout(), formatJSON, formatTable, formatText)
			if err != nil {
				return err
			}
			videoID, err := validation.NormalizeVideoID(args[0])
			if err != nil {
				return err
			}
			if err := validation.ValidateLanguage(lang); err != nil {
				return err
			}

			retriever, err := ctx.newRetriever()
			if err != nil {
				return err
			}
			result, err := retriever.Retrieve(cmd.Context(), videoID, lang)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			switch out {
			case formatJSON:
				return writeJSON(cmd, result)
			case formatText:
				_, err := fmt.Fprintln(w, utils.FormatText(result.Transcript.Text()))
				return err
			default:
				fmt.Fprintln(w, describeResult(result))
				fmt.Fprintln(w, renderTranscript(result.Transcript))
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "", "Preferred caption language (default from config)")
	cmd.Flags().StringVar(&format, "format", "", "Output format: json, table or text")
	return cmd
}

func describeResult(r *captions.Result) string {
	return fmt.Sprintf("%s: %s %s track (%s via %s), %d cues",
		r.VideoID, r.Track.LanguageCode, r.Track.Kind, r.Match, r.Source, len(r.Transcript))
}

func renderTranscript(t captions.Transcript) string {
	rows := make([][]string, 0, len(t))
	for _, c := range t {
		rows = append(rows, []string{
			utils.FormatTimestamp(c.Start),
			utils.FormatTimestamp(c.End()),
			strings.TrimSpace(c.Text),
		})
	}
	return renderTable(
		[]string{"Start", "End", "Text"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft},
	)
}
