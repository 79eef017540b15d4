// Package display renders command output: JSON for machines, colored pterm
// text for people.
package display

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pagesync/sym"
)

// ShouldOutputJSON reports whether a command should print JSON: an explicit
// --json on the command wins, then the global flag, then PAGESYNC_JSON.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return os.Getenv("PAGESYNC_JSON") != ""
	}
	if f := cmd.Flags().Lookup("json"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetBool("json")
		return v
	}
	if v, err := cmd.Root().PersistentFlags().GetBool("json"); err == nil && v {
		return true
	}
	return os.Getenv("PAGESYNC_JSON") != ""
}

// OutputJSON marshals and prints JSON using MarshalJSON
func OutputJSON(v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// State renders a sync state with its glyph, colored by urgency.
func State(state string) string {
	label := sym.StateSymbol(state) + " " + state
	switch state {
	case "synced":
		return pterm.Green(label)
	case "local-modified":
		return pterm.LightCyan(label)
	case "remote-modified":
		return pterm.LightBlue(label)
	case "conflict":
		return pterm.Red(label)
	case "untracked", "remote-only":
		return pterm.Gray(label)
	}
	return label
}

// Outcome renders the result of a sync operation.
func Outcome(outcome string) string {
	switch outcome {
	case "pulled", "pushed", "created", "resolved":
		return pterm.Green(outcome)
	case "unchanged":
		return pterm.Gray(outcome)
	case "conflict":
		return pterm.Red(outcome)
	}
	return pterm.Yellow(outcome)
}

// Table prints rows under a header with pterm's default table style.
func Table(header []string, rows [][]string) error {
	data := pterm.TableData{header}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
