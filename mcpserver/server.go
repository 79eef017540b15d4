// Package mcpserver exposes read-only sync tooling over the Model Context
// Protocol so assistants can inspect a workspace without touching it.
package mcpserver

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/links"
	"github.com/teranos/pagesync/logger"
	"github.com/teranos/pagesync/sync"
	"github.com/teranos/pagesync/validate"
	"github.com/teranos/pagesync/version"
)

// Server wraps an Engine and serves its read operations as MCP tools.
type Server struct {
	engine   *sync.Engine
	validate validate.Options
	server   *server.MCPServer
	logger   *zap.SugaredLogger
}

// New builds the server and registers its tools.
func New(engine *sync.Engine, opts validate.Options, log *zap.SugaredLogger) *Server {
	s := &Server{
		engine:   engine,
		validate: opts,
		logger:   logger.Or(log).Named("mcp"),
	}
	s.server = server.NewMCPServer(
		"pagesync",
		version.Get().Version,
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// ServeStdio serves until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.server)
}

// MCPServer returns the underlying server, for transports other than stdio.
func (s *Server) MCPServer() *server.MCPServer { return s.server }

func (s *Server) registerTools() {
	s.server.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Sync state of workspace documents: synced, local-modified, remote-modified, conflict, untracked or remote-only"),
		mcp.WithString("path",
			mcp.Description("Document path relative to the workspace root. Omit for every document."),
		),
	), s.handleStatus)

	s.server.AddTool(mcp.NewTool("validate",
		mcp.WithDescription("Check documents for broken links, unbalanced macros, oversized content and folders without an index"),
		mcp.WithString("dir",
			mcp.Description("Only report issues under this directory"),
		),
	), s.handleValidate)

	s.server.AddTool(mcp.NewTool("link_diff",
		mcp.WithDescription("Links added to or removed from a document since it was last synced"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Document path relative to the workspace root"),
		),
	), s.handleLinkDiff)
}

type statusEntry struct {
	Path    string `json:"path"`
	State   string `json:"state"`
	ID      string `json:"id,omitempty"`
	Version int    `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var statuses []sync.Status
	if path := req.GetString("path", ""); path != "" {
		st, err := s.engine.Status(ctx, path)
		if err != nil {
			return toolError(err)
		}
		statuses = []sync.Status{st}
	} else {
		var err error
		if statuses, err = s.engine.StatusAll(ctx); err != nil {
			return toolError(err)
		}
	}

	out := make([]statusEntry, 0, len(statuses))
	for _, st := range statuses {
		e := statusEntry{Path: st.Path, State: string(st.State)}
		if st.Document != nil {
			e.ID = st.Document.ID
			e.Version = st.Document.Version
		}
		if st.Err != nil {
			e.Error = st.Err.Error()
		}
		out = append(out, e)
	}
	return jsonResult(out)
}

func (s *Server) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir := strings.Trim(req.GetString("dir", ""), "/")
	report, err := validate.Tree(ctx, s.engine.Workspace(), s.engine.Known(), s.validate, s.logger)
	if err != nil {
		return toolError(err)
	}
	issues := []validate.Issue{}
	for _, issue := range report.Issues() {
		if dir == "" || dir == "." || issue.Path == dir || strings.HasPrefix(issue.Path, dir+"/") {
			issues = append(issues, issue)
		}
	}
	return jsonResult(map[string]interface{}{
		"issues":     issues,
		"has_errors": validate.HasErrors(issues),
	})
}

type linkEntry struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Line   int    `json:"line,omitempty"`
}

func (s *Server) handleLinkDiff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return toolError(err)
	}
	diff, err := s.engine.LinkDiff(ctx, path)
	if err != nil {
		return toolError(err)
	}
	conv := func(ls []links.Link) []linkEntry {
		out := make([]linkEntry, 0, len(ls))
		for _, l := range ls {
			out = append(out, linkEntry{Type: l.Type.String(), Target: l.Target, Line: l.Line})
		}
		return out
	}
	return jsonResult(map[string]interface{}{
		"added":     conv(diff.Added),
		"removed":   conv(diff.Removed),
		"unchanged": len(diff.Unchanged),
	})
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal tool result")
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError reports err to the client as a failed tool call rather than a
// protocol error.
func toolError(err error) (*mcp.CallToolResult, error) {
	msg := err.Error()
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		msg += " (" + strings.Join(hints, "; ") + ")"
	}
	return mcp.NewToolResultError(msg), nil
}
