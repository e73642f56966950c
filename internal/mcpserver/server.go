// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes shatag verification tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/shatag/internal/api"
	"github.com/starford/shatag/internal/history"
	"github.com/starford/shatag/internal/service"
	"github.com/starford/shatag/internal/verifier"
)

const outcomesURI = "shatag://outcomes"

// Server wraps the MCP server with shatag tools.
type Server struct {
	mcp *server.MCPServer
	svc *service.Service
}

// New creates a new MCP server with all shatag tools registered.
func New(svc *service.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"shatag",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("verify_file",
		mcp.WithDescription("Verify one file against its stored checksum and timestamp tags. "+
			"Rewrites the tags when the file changed legitimately and reports corruption otherwise."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the served root (e.g. photos/img.jpg)")),
	), s.verifyFile)

	s.mcp.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List regular files under the served root or one of its folders."),
		mcp.WithString("dir", mcp.Description("Optional folder to list (empty for all)")),
	), s.listFiles)

	s.mcp.AddTool(mcp.NewTool("list_history",
		mcp.WithDescription("List recorded verifications, newest first."),
		mcp.WithString("path", mcp.Description("Optional path relative to the served root")),
		mcp.WithString("outcome", mcp.Description("Optional outcome filter"),
			mcp.Enum("ok", "outdated", "corrupt", "write_failure", service.OutcomeError)),
		mcp.WithNumber("limit", mcp.Description("Max entries (default 100)")),
	), s.listHistory)

	s.mcp.AddTool(mcp.NewTool("list_corrupt",
		mcp.WithDescription("List files whose most recent verification found silent corruption."),
		mcp.WithNumber("limit", mcp.Description("Max entries (default 100)")),
	), s.listCorrupt)

	s.mcp.AddTool(mcp.NewTool("get_outcome_guide",
		mcp.WithDescription("Explains the verification outcomes and how to act on them."),
	), s.getOutcomeGuide)

	s.mcp.AddResource(
		mcp.NewResource(outcomesURI, "Verification Outcomes",
			mcp.WithResourceDescription("What each verification outcome means and its exit status."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readOutcomesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) verifyFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.VerifyRel(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("verify %s: %v", path, err)), nil
	}
	return jsonResult(api.NewVerifyResponse(res, s.rel(res.Path)))
}

func (s *Server) listFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tree := s.svc.Tree()
	if tree == nil {
		return mcp.NewToolResultError("no root configured"), nil
	}
	metas, err := tree.List(req.GetString("dir", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(metas) == 0 {
		return mcp.NewToolResultText("no files found"), nil
	}

	paths := make([]string, 0, len(metas))
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) listHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := history.Filter{
		Outcome: req.GetString("outcome", ""),
		Limit:   req.GetInt("limit", 0),
	}
	if f.Outcome != "" && f.Outcome != service.OutcomeError {
		if _, err := verifier.ParseOutcome(f.Outcome); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if p := req.GetString("path", ""); p != "" {
		f.Path = s.abs(p)
	}

	entries, err := s.svc.History(ctx, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.relEntries(entries))
}

func (s *Server) listCorrupt(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := s.svc.Corrupt(ctx, req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("no corrupt files found"), nil
	}
	return jsonResult(s.relEntries(entries))
}

func (s *Server) getOutcomeGuide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(OutcomeGuide), nil
}

func (s *Server) readOutcomesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      outcomesURI,
			MIMEType: "text/markdown",
			Text:     OutcomeGuide,
		},
	}, nil
}

// abs maps a root-relative path to the absolute form history records.
// Unresolvable paths are passed through and simply match nothing.
func (s *Server) abs(rel string) string {
	tree := s.svc.Tree()
	if tree == nil {
		return rel
	}
	if p, err := tree.Resolve(rel); err == nil {
		return p
	}
	return filepath.Join(tree.Root(), filepath.FromSlash(rel))
}

func (s *Server) rel(abs string) string {
	if tree := s.svc.Tree(); tree != nil {
		if r, err := tree.Rel(abs); err == nil {
			return r
		}
	}
	return abs
}

func (s *Server) relEntries(entries []history.Entry) []history.Entry {
	for i := range entries {
		entries[i].Path = s.rel(entries[i].Path)
	}
	return entries
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
