package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ivlev/scriptvideo/internal/script"
)

func newParseCommand(_ *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "parse FILE...",
		Short: "Show the instructions found in script files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instructions, err := script.ParseFiles(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(instructions)
			}

			rows := make([][]string, 0, len(instructions))
			for _, in := range instructions {
				rows = append(rows, []string{strconv.Itoa(in.SceneNumber), effectList(in.Effects), in.Text})
			}
			fmt.Fprintln(out, renderTable([]string{"Scene", "Effects", "Text"}, rows, []columnAlignment{alignRight}))
			fmt.Fprintf(out, "[*] %d instructions from %d file(s)\n", len(instructions), len(args))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print instructions as JSON")
	return cmd
}

func effectList(effects []script.Effect) string {
	if len(effects) == 0 {
		return "-"
	}
	parts := make([]string, len(effects))
	for i, e := range effects {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
