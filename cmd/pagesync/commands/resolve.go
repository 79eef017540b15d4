package commands

import (
	"os"
	"os/exec"

	"github.com/kballard/go-shellquote"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pagesync/display"
	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/sym"
	"github.com/teranos/pagesync/sync"
)

// ResolveCmd settles conflicts.
var ResolveCmd = &cobra.Command{
	Use:   "resolve <path>",
	Short: sym.Conflict + " Settle a conflict by accepting one side",
	Long: sym.Conflict + ` resolve — Settle a conflict by accepting one side

  --accept local   keep the local file; the next push overwrites the remote
  --accept remote  keep the remote page; the next pull overwrites the file
  --accept merge   the file now holds a hand-made merge; the next push sends it

--edit opens the file in $VISUAL or $EDITOR first and implies --accept merge.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

var (
	resolveAccept string
	resolveEdit   bool
)

func init() {
	ResolveCmd.Flags().StringVar(&resolveAccept, "accept", "", "Side to keep: local, remote or merge")
	ResolveCmd.Flags().BoolVar(&resolveEdit, "edit", false, "Edit the file, then accept it as the merge")
}

func runResolve(cmd *cobra.Command, args []string) error {
	accept := resolveAccept
	if resolveEdit {
		if accept != "" && accept != "merge" {
			return errors.Newf("--edit cannot be combined with --accept %s", accept)
		}
		accept = "merge"
	}
	if accept == "" {
		return errors.WithHint(errors.New("no resolution given"), "pass --accept local|remote|merge or --edit")
	}
	r, err := sync.ParseResolution(accept)
	if err != nil {
		return err
	}
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	rel, err := a.relPath(args[0])
	if err != nil {
		return err
	}
	if resolveEdit {
		if err := runEditor(a.ws.Abs(rel)); err != nil {
			return err
		}
	}
	out, err := a.engine.Resolve(cmd.Context(), rel, r)
	if err != nil {
		return err
	}
	st, err := a.engine.Status(cmd.Context(), rel)
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(map[string]string{"path": rel, "outcome": string(out), "state": string(st.State)})
	}
	pterm.Success.Printf("%s resolved (%s), now %s\n", rel, r, display.State(string(st.State)))
	return nil
}

// editorCommand splits $VISUAL or $EDITOR into argv, falling back to vi.
func editorCommand(file string) ([]string, error) {
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}
	argv, err := shellquote.Split(editor)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse editor command %q", editor)
	}
	if len(argv) == 0 {
		return nil, errors.New("empty editor command")
	}
	return append(argv, file), nil
}

func runEditor(file string) error {
	argv, err := editorCommand(file)
	if err != nil {
		return err
	}
	c := exec.Command(argv[0], argv[1:]...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Run(); err != nil {
		return errors.WithHint(errors.Wrapf(err, "editor %s failed", argv[0]), "the conflict is still open")
	}
	return nil
}
