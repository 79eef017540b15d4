package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/sym"
	"github.com/teranos/pagesync/sync"
)

// PushCmd publishes local edits.
var PushCmd = &cobra.Command{
	Use:   "push <path>...",
	Short: sym.LocalModified + " Publish local changes to the remote store",
	Long: sym.LocalModified + ` push — Publish local changes to the remote store

The remote page is fetched before each push so an edit made there since the
last sync is never overwritten: such documents are reported as
remote-modified or conflict and left alone.

Untracked files are skipped unless --create is given, which creates a new
page (under --parent when set).

Examples:
  pagesync push guide/setup.md
  pagesync push --create --parent 123456 guide/new-page.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPush,
}

var (
	pushCreate bool
	pushParent string
)

func init() {
	PushCmd.Flags().BoolVar(&pushCreate, "create", false, "Create pages for untracked files")
	PushCmd.Flags().StringVar(&pushParent, "parent", "", "Parent page id for created pages")
}

func runPush(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	var rows []outcomeRow
	var failed int
	for _, arg := range args {
		row := outcomeRow{Target: arg}
		rel, err := a.relPath(arg)
		if err == nil {
			row.Target = rel
			var out sync.Outcome
			out, err = a.engine.Push(ctx, rel)
			if err == nil && out == sync.OutcomeUntracked && pushCreate {
				out, err = a.engine.Create(ctx, rel, pushParent)
			}
			row.Outcome = string(out)
		}
		if err != nil {
			row.Error = err.Error()
			failed++
		}
		rows = append(rows, row)
	}
	if err := printOutcomes(cmd, rows); err != nil {
		return err
	}
	if failed > 0 {
		return errors.Newf("%d of %d pushes failed", failed, len(args))
	}
	return nil
}
