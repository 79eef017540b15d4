package commands

import (
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pagesync/display"
	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/remote"
	"github.com/teranos/pagesync/sym"
	"github.com/teranos/pagesync/types"
)

// PullCmd fetches remote pages.
var PullCmd = &cobra.Command{
	Use:   "pull [id|path]...",
	Short: sym.RemoteModified + " Fetch remote changes into the local tree",
	Long: sym.RemoteModified + ` pull — Fetch remote changes into the local tree

Arguments are page ids or paths of tracked documents. A pull never
overwrites a local edit: documents with local changes or conflicts are
reported and left alone.

Examples:
  pagesync pull 123456          # Pull one page, tracking it if new
  pagesync pull guide/setup.md  # Pull a tracked document
  pagesync pull --all           # Pull every page in poll.scope`,
	RunE: runPull,
}

var pullAll bool

func init() {
	PullCmd.Flags().BoolVar(&pullAll, "all", false, "Pull every page in the configured scope")
}

type outcomeRow struct {
	Target  string `json:"target"`
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`
}

func runPull(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !pullAll {
		return errors.WithHint(errors.New("nothing to pull"), "pass page ids or paths, or --all")
	}
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	ids := make([]string, 0, len(args))
	if pullAll {
		scope, err := a.cfg.PollScope()
		if err != nil {
			return err
		}
		if ps, ok := scope.(types.PageScope); ok {
			ids = append(ids, ps.PageID)
		} else {
			pages, err := a.remote.ListPages(ctx, scope)
			if err != nil {
				return errors.Wrapf(err, "failed to list %s", scope)
			}
			// Parents first, so children land in their parent's folder.
			sortByDepth(pages)
			for _, p := range pages {
				ids = append(ids, p.ID)
			}
		}
	}
	for _, arg := range args {
		id, err := a.resolveTarget(cmd, arg)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	var rows []outcomeRow
	var failed int
	for _, id := range ids {
		out, err := a.engine.Pull(ctx, id)
		row := outcomeRow{Target: id, Outcome: string(out)}
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
		return errors.Newf("%d of %d pulls failed", failed, len(ids))
	}
	return nil
}

// resolveTarget maps a tracked path to its page id; anything else is taken
// as a page id.
func (a *app) resolveTarget(cmd *cobra.Command, arg string) (string, error) {
	if rel, err := a.relPath(arg); err == nil && a.ws.FileExists(rel) {
		id, ok, err := a.store.LookupPath(cmd.Context(), rel)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errors.WithHint(errors.Wrapf(errors.ErrNotTracked, "%s", rel), "pull it by page id first or push it with --create")
		}
		return id, nil
	}
	return arg, nil
}

func printOutcomes(cmd *cobra.Command, rows []outcomeRow) error {
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(rows)
	}
	for _, r := range rows {
		if r.Error != "" {
			pterm.Error.Printf("%s: %s\n", r.Target, r.Error)
			continue
		}
		pterm.Printf("  %-10s %s\n", display.Outcome(r.Outcome), r.Target)
	}
	return nil
}

func sortByDepth(pages []remote.Page) {
	sort.SliceStable(pages, func(i, j int) bool {
		return len(pages[i].Ancestors) < len(pages[j].Ancestors)
	})
}
