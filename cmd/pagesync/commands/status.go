package commands

import (
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pagesync/display"
	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/sym"
	"github.com/teranos/pagesync/sync"
	"github.com/teranos/pagesync/types"
)

// StatusCmd reports sync states.
var StatusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: sym.Synced + " Show the sync state of local documents",
	Long: sym.Synced + ` status — Show the sync state of local documents

Without a path every document in the workspace is listed, together with
tracked documents whose file is gone (remote-only).

States:
  ` + sym.Synced + ` synced           local, remote and base agree
  ` + sym.LocalModified + ` local-modified   push pending
  ` + sym.RemoteModified + ` remote-modified  pull pending
  ` + sym.Conflict + ` conflict         both sides changed
  ` + sym.Untracked + ` untracked        no record yet
  ` + sym.RemoteOnly + ` remote-only      record without a local file`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var statusAttachments bool

func init() {
	StatusCmd.Flags().BoolVar(&statusAttachments, "attachments", false, "List the attachment states of the given document")
}

type statusRow struct {
	Path    string `json:"path"`
	State   string `json:"state"`
	ID      string `json:"id,omitempty"`
	Version int    `json:"version,omitempty"`
	Deleted bool   `json:"deleted_remote,omitempty"`
	Error   string `json:"error,omitempty"`
}

func toRow(s sync.Status) statusRow {
	row := statusRow{Path: s.Path, State: string(s.State)}
	if s.Document != nil {
		row.ID = s.Document.ID
		row.Version = s.Document.Version
		row.Deleted = s.Document.ContentStatus == types.StatusDeletedRemote
	}
	if s.Err != nil {
		row.Error = s.Err.Error()
	}
	return row
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if statusAttachments {
		if len(args) != 1 {
			return errors.WithHint(errors.New("--attachments needs a document path"), "pagesync status --attachments docs/page.md")
		}
		rel, err := a.relPath(args[0])
		if err != nil {
			return err
		}
		return printAttachmentStatus(cmd, a.engine, rel)
	}

	var statuses []sync.Status
	if len(args) == 1 {
		rel, err := a.relPath(args[0])
		if err != nil {
			return err
		}
		st, err := a.engine.Status(ctx, rel)
		if err != nil {
			return err
		}
		statuses = []sync.Status{st}
	} else {
		statuses, err = a.engine.StatusAll(ctx)
		if err != nil {
			return err
		}
	}

	rows := make([]statusRow, 0, len(statuses))
	for _, s := range statuses {
		rows = append(rows, toRow(s))
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(rows)
	}
	if len(rows) == 0 {
		pterm.Info.Println("No documents in workspace")
		return nil
	}

	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		version := ""
		if r.Version > 0 {
			version = "v" + strconv.Itoa(r.Version)
		}
		note := r.Error
		if r.Deleted {
			note = "deleted remotely"
		}
		table = append(table, []string{display.State(r.State), r.Path, r.ID, version, note})
	}
	return display.Table([]string{"State", "Path", "ID", "Version", ""}, table)
}

type attachmentRow struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	State     string `json:"state"`
	Version   int    `json:"version,omitempty"`
	LocalPath string `json:"local_path,omitempty"`
}

func printAttachmentStatus(cmd *cobra.Command, engine *sync.Engine, rel string) error {
	atts, err := engine.AttachmentStatus(cmd.Context(), rel)
	if err != nil {
		return err
	}
	rows := make([]attachmentRow, 0, len(atts))
	for _, s := range atts {
		rows = append(rows, attachmentRow{
			ID:        s.Attachment.ID,
			Filename:  s.Attachment.Filename,
			State:     string(s.State),
			Version:   s.Attachment.Version,
			LocalPath: s.LocalPath,
		})
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(rows)
	}
	if len(rows) == 0 {
		pterm.Info.Printfln("No attachments recorded for %s", rel)
		return nil
	}
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		table = append(table, []string{display.State(r.State), r.Filename, r.ID, "v" + strconv.Itoa(r.Version), r.LocalPath})
	}
	return display.Table([]string{"State", "Attachment", "ID", "Version", "Local copy"}, table)
}
