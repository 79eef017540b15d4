package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pagesync/display"
	"github.com/teranos/pagesync/links"
	"github.com/teranos/pagesync/sym"
)

// LinksCmd compares a document's current links with the stored set.
var LinksCmd = &cobra.Command{
	Use:   "links <path>",
	Short: sym.Link + " Show how a document's links changed since the last sync",
	Long: sym.Link + ` links — Show how a document's links changed since the last sync

Links are extracted from the current file and compared with the set stored
at the last pull or push, keyed by type and target.

With --update the stored set is replaced by the current links.`,
	Args: cobra.ExactArgs(1),
	RunE: runLinks,
}

var linksUpdate bool

func init() {
	LinksCmd.Flags().BoolVar(&linksUpdate, "update", false, "Store the current links")
}

type linkRow struct {
	Change string `json:"change"`
	Type   string `json:"type"`
	Target string `json:"target"`
	Line   int    `json:"line,omitempty"`
}

func runLinks(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	rel, err := a.relPath(args[0])
	if err != nil {
		return err
	}
	diff, err := a.engine.LinkDiff(ctx, rel)
	if err != nil {
		return err
	}
	if linksUpdate && !diff.Empty() {
		rec, err := a.store.GetByPath(ctx, rel)
		if err != nil {
			return err
		}
		doc, err := a.ws.Read(rel)
		if err != nil {
			return err
		}
		if _, err := a.engine.RefreshLinks(ctx, rec, doc.Body); err != nil {
			return err
		}
	}

	var rows []linkRow
	add := func(change string, ls []links.Link) {
		for _, l := range ls {
			rows = append(rows, linkRow{Change: change, Type: l.Type.String(), Target: l.Target, Line: l.Line})
		}
	}
	add("added", diff.Added)
	add("removed", diff.Removed)
	add("unchanged", diff.Unchanged)

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(rows)
	}
	if diff.Empty() {
		pterm.Info.Printf("%s: %d links, none changed\n", rel, len(diff.Unchanged))
		return nil
	}
	for _, r := range rows {
		switch r.Change {
		case "added":
			pterm.Println(pterm.Green(fmt.Sprintf("+ %-10s %s", r.Type, r.Target)))
		case "removed":
			pterm.Println(pterm.Red(fmt.Sprintf("- %-10s %s", r.Type, r.Target)))
		}
	}
	pterm.Printf("%d added, %d removed, %d unchanged\n", len(diff.Added), len(diff.Removed), len(diff.Unchanged))
	return nil
}
