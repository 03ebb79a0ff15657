package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/nfrund/chatroom/internal/session"
	"github.com/spf13/cobra"
)

var topicsOutputFormat string

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List the event bus topics the server publishes",
	Long: `List the internal event bus topics. Room keys never appear on the bus;
rooms are identified by a short fingerprint instead.

Output formats:
  table - Human-readable table format (default)
  json  - Machine-readable JSON`,
	RunE: func(cmd *cobra.Command, args []string) error {
		topics := session.Topics()
		out := cmd.OutOrStdout()

		switch topicsOutputFormat {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(topics)
		case "table":
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOPIC\tDESCRIPTION")
			for _, t := range topics {
				fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Description)
			}
			return w.Flush()
		default:
			return fmt.Errorf("unknown format %q (valid: table, json)", topicsOutputFormat)
		}
	},
}

func init() {
	topicsCmd.Flags().StringVarP(&topicsOutputFormat, "format", "f", "table", "output format (table, json)")
	rootCmd.AddCommand(topicsCmd)
}
