package commands

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pagesync/display"
	"github.com/teranos/pagesync/sym"
	"github.com/teranos/pagesync/validate"
)

// ValidateCmd checks documents before they are pushed.
var ValidateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: sym.Doc + " Check documents for broken links and malformed macros",
	Long: sym.Doc + ` validate — Check documents for broken links and malformed macros

Every document under dir (default: the whole workspace) is checked for
broken links, links to untracked documents, unbalanced macro fences and
oversized content. Folders are checked for a missing index document.

Exits 1 when any error-level issue is found; warnings alone exit 0.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

type validateOutput struct {
	Issues []validate.Issue `json:"issues"`
	Failed []failedFile     `json:"failed,omitempty"`
	Files  int              `json:"files"`
}

type failedFile struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	prefix := ""
	if len(args) == 1 {
		if prefix, err = a.relPath(args[0]); err != nil {
			return err
		}
	}

	report, err := validate.Tree(cmd.Context(), a.ws, a.engine.Known(), validate.Options{
		MaxBytes: a.cfg.Validation.MaxDocumentBytes,
	}, a.log)
	if err != nil {
		return err
	}

	out := validateOutput{Issues: []validate.Issue{}}
	for _, f := range report.Files {
		if !under(f.Path, prefix) {
			continue
		}
		out.Files++
		if f.Err != nil {
			out.Failed = append(out.Failed, failedFile{Path: f.Path, Error: f.Err.Error()})
		}
	}
	for _, issue := range report.Issues() {
		if under(issue.Path, prefix) {
			out.Issues = append(out.Issues, issue)
		}
	}

	if display.ShouldOutputJSON(cmd) {
		if err := display.OutputJSON(out); err != nil {
			return err
		}
	} else {
		printIssues(out)
	}
	if validate.HasErrors(out.Issues) || len(out.Failed) > 0 {
		return ErrValidationFailed
	}
	return nil
}

// under reports whether p is prefix or lies below it. An empty or "." prefix
// matches everything.
func under(p, prefix string) bool {
	if prefix == "" || prefix == "." {
		return true
	}
	return p == prefix || strings.HasPrefix(p, strings.TrimSuffix(prefix, "/")+"/")
}

func printIssues(out validateOutput) {
	var errs, warns int
	for _, issue := range out.Issues {
		if issue.Severity == validate.SeverityError {
			errs++
			pterm.Println(pterm.Red("error   ") + issue.String())
		} else {
			warns++
			pterm.Println(pterm.Yellow("warning ") + issue.String())
		}
	}
	for _, f := range out.Failed {
		pterm.Error.Printf("%s: %s\n", f.Path, f.Error)
	}
	if errs == 0 && warns == 0 && len(out.Failed) == 0 {
		pterm.Success.Printf("%d documents, no issues\n", out.Files)
		return
	}
	pterm.Printf("%d documents: %d errors, %d warnings\n", out.Files, errs, warns)
}
