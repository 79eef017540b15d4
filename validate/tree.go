package validate

import (
	"context"
	"os"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/local"
	"github.com/teranos/pagesync/logger"
)

// FileReport holds the outcome for one document. Err is set when the
// document could not be validated at all.
type FileReport struct {
	Path   string  `json:"path"`
	Issues []Issue `json:"issues,omitempty"`
	Err    error   `json:"-"`
}

// Report aggregates a tree pass.
type Report struct {
	Files []FileReport `json:"files"`
	// Folders holds directory-level issues.
	Folders []Issue `json:"folders,omitempty"`
}

// Issues flattens every issue in the report.
func (r Report) Issues() []Issue {
	var out []Issue
	for _, f := range r.Files {
		out = append(out, f.Issues...)
	}
	out = append(out, r.Folders...)
	sortIssues(out)
	return out
}

// Failed lists the reports of documents that could not be validated.
func (r Report) Failed() []FileReport {
	var out []FileReport
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Tree validates every document in ws and the folder structure. A document
// that fails to read or resolve is recorded in its FileReport and the pass
// continues. Only a failure to enumerate the workspace is returned.
func Tree(ctx context.Context, ws *local.Workspace, known Known, opts Options, log *zap.SugaredLogger) (Report, error) {
	log = logger.Or(log).Named("validate")
	var report Report

	docs, err := ws.Documents()
	if err != nil {
		return report, err
	}

	var folders []string
	for _, p := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		fr := FileReport{Path: p}
		doc, err := ws.Read(p)
		if err != nil && doc.Path == "" {
			fr.Err = err
			log.Warnw("Document could not be read", logger.FieldPath, p, logger.FieldError, err)
			report.Files = append(report.Files, fr)
			continue
		}
		if err != nil {
			// Unparseable frontmatter still leaves a body worth checking.
			log.Debugw("Frontmatter ignored", logger.FieldPath, p, logger.FieldError, err)
		}
		issues, err := File(ctx, p, doc.Body, known, opts)
		if err != nil {
			fr.Err = errors.Wrapf(err, "validate %s", p)
			log.Warnw("Document validation failed", logger.FieldPath, p, logger.FieldError, err)
		}
		fr.Issues = issues
		report.Files = append(report.Files, fr)
		if doc.Frontmatter.Folder {
			folders = append(folders, p)
		}
	}

	for _, p := range folders {
		issue, err := checkFolderIndex(ws, p)
		if err != nil {
			log.Warnw("Folder check failed", logger.FieldPath, p, logger.FieldError, err)
			continue
		}
		if issue != nil {
			report.Folders = append(report.Folders, *issue)
		}
	}

	dirs, err := ws.Dirs()
	if err != nil {
		return report, err
	}
	for _, d := range dirs {
		issue, err := checkMissingIndex(ws, d)
		if err != nil {
			log.Warnw("Folder check failed", logger.FieldPath, d, logger.FieldError, err)
			continue
		}
		if issue != nil {
			report.Folders = append(report.Folders, *issue)
		}
	}
	sortIssues(report.Folders)

	log.Debugw("Validation finished", logger.FieldCount, len(report.Files), "issues", len(report.Issues()))
	return report, nil
}

// checkFolderIndex flags a folder document whose folder holds nothing.
func checkFolderIndex(ws *local.Workspace, docPath string) (*Issue, error) {
	dir := local.FolderPath(docPath)
	if info, err := os.Stat(ws.Abs(dir)); err == nil && info.IsDir() {
		docs, subdirs, err := ws.Children(dir)
		if err != nil {
			return nil, err
		}
		if len(docs)+len(subdirs) > 0 {
			return nil, nil
		}
	}
	return &Issue{
		Path:     docPath,
		Severity: SeverityWarning,
		Code:     FolderEmpty,
		Message:  "folder has no child documents or subfolders",
	}, nil
}

// checkMissingIndex flags a directory with documents but no index. A
// directory named after a sibling document holds that page's children and
// needs no index.
func checkMissingIndex(ws *local.Workspace, dir string) (*Issue, error) {
	if dir == "." {
		return nil, nil
	}
	docs, _, err := ws.Children(dir)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	if ws.FileExists(path.Join(dir, local.IndexFile)) || ws.FileExists(dir+local.DocumentExt) {
		return nil, nil
	}
	return &Issue{
		Path:     strings.TrimSuffix(dir, "/") + "/",
		Severity: SeverityWarning,
		Code:     FolderMissingIndex,
		Message:  "directory has documents but no " + local.IndexFile,
	}, nil
}
