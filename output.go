package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	formatText  = "text"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputFormat validates the --format flag. An empty flag means a table on
// a terminal and JSON anywhere else.
func outputFormat(flag string, w io.Writer, allowed ...string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(flag))
	if format == "" {
		if isTerminal(w) {
			return formatTable, nil
		}
		return formatJSON, nil
	}
	for _, a := range allowed {
		if format == a {
			return format, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (want one of %s)", flag, strings.Join(allowed, ", "))
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
