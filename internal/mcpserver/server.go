// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Dagaz tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/dagaz/internal/models"
	"github.com/starford/dagaz/internal/noteservice"
)

// clientID identifies appends made through the MCP transport so that retried
// tool calls from the same agent session stay idempotent per bullet id.
const clientID = "mcp"

// Server wraps the MCP server with Dagaz tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all Dagaz tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Dagaz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("ensure_note",
		mcp.WithDescription("Get or create a note. Pass either a date (YYYY-MM-DD) "+
			"for a daily note or a title for a named note, not both."),
		mcp.WithString("date", mcp.Description("Daily note date in YYYY-MM-DD format")),
		mcp.WithString("title", mcp.Description("Named note title")),
	), s.ensureNote)

	s.mcp.AddTool(mcp.NewTool("append_bullet",
		mcp.WithDescription("Append a bullet to a note. Text may contain [[wikilinks]], "+
			"#tags and URLs; they are indexed automatically. Pass parent_id to nest the "+
			"bullet under an existing one."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("ID of the target note")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Bullet text")),
		mcp.WithString("parent_id", mcp.Description("Optional parent bullet ID")),
	), s.appendBullet)

	s.mcp.AddTool(mcp.NewTool("search_bullets",
		mcp.WithDescription("Full-text search across all bullets."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchBullets)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all bullets that reference a target. Use type \"note\" "+
			"for wikilink targets, \"entity\" for tags, \"url\" for URLs."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Target value, e.g. a note title or tag name")),
		mcp.WithString("type", mcp.Description("Target type: note (default), entity, or url")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List all tasks across notes with their current state (open, doing, done)."),
	), s.listTasks)

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

func (s *Server) ensureNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	date := ""
	if d, err := req.RequireString("date"); err == nil {
		date = d
	}
	title := ""
	if v, err := req.RequireString("title"); err == nil {
		title = v
	}
	note, err := s.svc.EnsureNote(ctx, date, title)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(note, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) appendBullet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	noteID, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parentID := ""
	if v, perr := req.RequireString("parent_id"); perr == nil {
		parentID = v
	}

	p := models.BulletPayload{
		BulletID: uuid.NewString(),
		ParentID: parentID,
		Text:     text,
	}
	if parentID != "" {
		parent, perr := s.svc.GetBullet(ctx, parentID)
		if perr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("parent not found: %s", parentID)), nil
		}
		p.Depth = parent.Depth + 1
	}

	res, err := s.svc.AppendBullet(ctx, noteID, clientID, p)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(map[string]any{
		"bulletId": p.BulletID,
		"orderSeq": res.OrderSeq,
		"lastSeq":  res.LastSeq,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchBullets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	targetType := models.TargetNote
	if v, terr := req.RequireString("type"); terr == nil {
		targetType = v
	}
	results, err := s.svc.Backlinks(ctx, targetType, target)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listTasks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := s.svc.Tasks(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(tasks, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
