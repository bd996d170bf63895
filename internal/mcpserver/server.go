// Package mcpserver exposes the content operations as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wrenholt/libris/internal/batch"
	"github.com/wrenholt/libris/internal/journal"
	"github.com/wrenholt/libris/internal/ops"
)

// Server wraps the MCP server with the libris tool set.
type Server struct {
	mcp     *server.MCPServer
	router  *ops.Router
	batch   *batch.Executor
	journal *journal.Journal
	log     *slog.Logger
}

// New creates the MCP server with all tools registered. jnl may be nil.
func New(router *ops.Router, exec *batch.Executor, jnl *journal.Journal, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{router: router, batch: exec, journal: jnl, log: log}

	s.mcp = server.NewMCPServer(
		"Libris",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	entityEnum := make([]string, len(ops.Entities))
	for i, e := range ops.Entities {
		entityEnum[i] = string(e)
	}

	s.mcp.AddTool(mcp.NewTool("manage_content",
		mcp.WithDescription("Create, read, update, delete, or list BookStack content. "+
			"Field requirements vary by entity: create book/bookshelf require name; "+
			"create chapter requires book_id+name; create page requires name, exactly one of "+
			"book_id/chapter_id, and exactly one of markdown/html; update requires id and at "+
			"least one field to change."),
		mcp.WithString("operation", mcp.Required(),
			mcp.Description("Operation to perform"),
			mcp.Enum("create", "read", "update", "delete", "list")),
		mcp.WithString("entity_type", mcp.Required(),
			mcp.Description("Content entity type"),
			mcp.Enum(entityEnum...)),
		mcp.WithNumber("id", mcp.Description("Entity id (required for read/update/delete)")),
		mcp.WithObject("fields", mcp.Description("Entity fields (required for create/update)")),
	), s.manageContent)

	s.mcp.AddTool(mcp.NewTool("list_content",
		mcp.WithDescription("List content of one entity type with pagination, filters, and sort. "+
			"Repeated identical queries within a short window are served from a local cache."),
		mcp.WithString("entity_type", mcp.Required(),
			mcp.Description("Content entity type"),
			mcp.Enum(entityEnum...)),
		mcp.WithNumber("offset", mcp.Description("Pagination offset (default 0)")),
		mcp.WithNumber("count", mcp.Description("Page size, 1-100 (default 100, 20 for images)")),
		mcp.WithObject("filters", mcp.Description("Upstream filter[key]=value pairs")),
		mcp.WithString("sort", mcp.Description("Sort expression, e.g. +name or -created_at")),
	), s.listContent)

	s.mcp.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Full-text search across all content using BookStack search syntax."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("page", mcp.Description("Result page (default 1)")),
		mcp.WithNumber("count", mcp.Description("Results per page, 1-100")),
	), s.search)

	s.mcp.AddTool(mcp.NewTool("manage_images",
		mcp.WithDescription("Create, read, update, delete, or list gallery images. "+
			"The image field accepts inline base64, a data URL, or an http(s) URL "+
			"(fetched with a 30s timeout and 50MB cap). Create requires name, image, "+
			"and uploaded_to (the target page id)."),
		mcp.WithString("operation", mcp.Required(),
			mcp.Description("Operation to perform"),
			mcp.Enum("create", "read", "update", "delete", "list")),
		mcp.WithString("name", mcp.Description("Image name (create)")),
		mcp.WithString("image", mcp.Description("Image data: base64, data URL, or http(s) URL (create)")),
		mcp.WithNumber("uploaded_to", mcp.Description("Target page id (required for create)")),
		mcp.WithString("type", mcp.Description("Image type"), mcp.Enum("gallery", "drawio")),
		mcp.WithNumber("id", mcp.Description("Image id (read/update/delete)")),
		mcp.WithString("new_name", mcp.Description("Replacement name (update)")),
		mcp.WithString("new_image", mcp.Description("Replacement image data (update)")),
		mcp.WithString("file_name", mcp.Description("Override the upload filename")),
		mcp.WithNumber("offset", mcp.Description("Pagination offset (list)")),
		mcp.WithNumber("count", mcp.Description("Page size, 1-100 (list, default 20)")),
		mcp.WithObject("filters", mcp.Description("Upstream filter[key]=value pairs (list)")),
		mcp.WithString("sort", mcp.Description("Sort expression (list)")),
	), s.manageImages)

	s.mcp.AddTool(mcp.NewTool("search_images",
		mcp.WithDescription("Search gallery images by name with optional client-side refinement "+
			"on extension, size, creation date, and the page an image is used in."),
		mcp.WithString("query", mcp.Description("Name substring to match upstream")),
		mcp.WithString("extension", mcp.Description("File extension, e.g. png")),
		mcp.WithNumber("size_min", mcp.Description("Minimum size in bytes")),
		mcp.WithNumber("size_max", mcp.Description("Maximum size in bytes")),
		mcp.WithString("created_after", mcp.Description("ISO date or RFC3339 lower bound")),
		mcp.WithString("created_before", mcp.Description("ISO date or RFC3339 upper bound")),
		mcp.WithNumber("used_in", mcp.Description("Only images uploaded to this page id")),
		mcp.WithNumber("offset", mcp.Description("Pagination offset")),
		mcp.WithNumber("count", mcp.Description("Page size, 1-100 (default 20)")),
		mcp.WithString("sort", mcp.Description("Sort expression")),
	), s.searchImages)

	s.mcp.AddTool(mcp.NewTool("batch_operations",
		mcp.WithDescription("Apply bulk_create, bulk_update, or bulk_delete to an ordered list of "+
			"items against one entity type. Items run sequentially and results keep input order. "+
			"Set dry_run to validate every item without issuing any network call."),
		mcp.WithString("operation", mcp.Required(),
			mcp.Description("Bulk operation"),
			mcp.Enum("bulk_create", "bulk_update", "bulk_delete")),
		mcp.WithString("entity_type", mcp.Required(),
			mcp.Description("Content entity type"),
			mcp.Enum(entityEnum...)),
		mcp.WithArray("items", mcp.Required(),
			mcp.Description("Ordered batch items; each has id (update/delete) and/or fields (create/update)"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":     map[string]any{"type": "number"},
					"fields": map[string]any{"type": "object"},
				},
			})),
		mcp.WithBoolean("continue_on_error",
			mcp.Description("Keep going after a failing item (default true)")),
		mcp.WithBoolean("dry_run",
			mcp.Description("Validate only; no upstream calls")),
	), s.batchOperations)

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

func (s *Server) manageContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	started := time.Now()
	operation := req.GetString("operation", "")
	entity := req.GetString("entity_type", "")
	fields, _ := req.GetArguments()["fields"].(map[string]any)

	env := s.router.Execute(ctx, ops.Request{
		Operation: ops.Operation(operation),
		Entity:    ops.Entity(entity),
		ID:        req.GetInt("id", 0),
		Fields:    fields,
	})
	s.journalize("manage_content", operation, entity, env, started)
	return result(env), nil
}

func (s *Server) listContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	started := time.Now()
	entity := req.GetString("entity_type", "")

	env := s.router.Execute(ctx, ops.Request{
		Operation: ops.OpList,
		Entity:    ops.Entity(entity),
		Offset:    req.GetInt("offset", 0),
		Count:     req.GetInt("count", 0),
		Sort:      req.GetString("sort", ""),
		Filters:   filterArgs(req),
	})
	s.journalize("list_content", "list", entity, env, started)
	return result(env), nil
}

func (s *Server) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	started := time.Now()
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	env := s.router.Search(ctx, query, req.GetInt("page", 0), req.GetInt("count", 0))
	s.journalize("search", "search", "", env, started)
	return result(env), nil
}

func (s *Server) manageImages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	started := time.Now()
	operation := req.GetString("operation", "")

	opReq := ops.Request{
		Operation: ops.Operation(operation),
		Entity:    ops.EntityImage,
		ID:        req.GetInt("id", 0),
	}
	switch opReq.Operation {
	case ops.OpCreate:
		opReq.Fields = map[string]any{
			"name":        req.GetString("name", ""),
			"image":       req.GetString("image", ""),
			"uploaded_to": req.GetInt("uploaded_to", 0),
		}
		if t := req.GetString("type", ""); t != "" {
			opReq.Fields["type"] = t
		}
		if fn := req.GetString("file_name", ""); fn != "" {
			opReq.Fields["file_name"] = fn
		}
	case ops.OpUpdate:
		opReq.Fields = map[string]any{}
		if n := req.GetString("new_name", ""); n != "" {
			opReq.Fields["name"] = n
		}
		if img := req.GetString("new_image", ""); img != "" {
			opReq.Fields["image"] = img
		}
		if fn := req.GetString("file_name", ""); fn != "" {
			opReq.Fields["file_name"] = fn
		}
	case ops.OpList:
		opReq.Offset = req.GetInt("offset", 0)
		opReq.Count = req.GetInt("count", 0)
		opReq.Sort = req.GetString("sort", "")
		opReq.Filters = filterArgs(req)
	}

	env := s.router.Execute(ctx, opReq)
	s.journalize("manage_images", operation, string(ops.EntityImage), env, started)
	return result(env), nil
}

func (s *Server) searchImages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	started := time.Now()

	env := s.router.SearchImages(ctx, ops.ImageSearch{
		Query:         req.GetString("query", ""),
		Extension:     req.GetString("extension", ""),
		SizeMin:       req.GetInt("size_min", 0),
		SizeMax:       req.GetInt("size_max", 0),
		CreatedAfter:  req.GetString("created_after", ""),
		CreatedBefore: req.GetString("created_before", ""),
		UsedIn:        req.GetInt("used_in", 0),
		Offset:        req.GetInt("offset", 0),
		Count:         req.GetInt("count", 0),
		Sort:          req.GetString("sort", ""),
	})
	s.journalize("search_images", "search", string(ops.EntityImage), env, started)
	return result(env), nil
}

func (s *Server) batchOperations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	started := time.Now()
	operation := req.GetString("operation", "")
	entity := req.GetString("entity_type", "")

	rawItems, _ := req.GetArguments()["items"].([]any)
	items := make([]batch.Item, 0, len(rawItems))
	for _, ri := range rawItems {
		m, _ := ri.(map[string]any)
		var it batch.Item
		if id, ok := m["id"].(float64); ok {
			it.ID = int(id)
		}
		if f, ok := m["fields"].(map[string]any); ok {
			it.Fields = f
		}
		items = append(items, it)
	}

	res := s.batch.Run(ctx, batch.Request{
		Operation:       operation,
		Entity:          ops.Entity(entity),
		Items:           items,
		ContinueOnError: req.GetBool("continue_on_error", true),
		DryRun:          req.GetBool("dry_run", false),
	})

	env := ops.Envelope{
		Operation: operation,
		Success:   !res.Aborted && res.Failed == 0,
		Data:      res,
		Metadata: map[string]any{
			"succeeded": res.Succeeded,
			"failed":    res.Failed,
			"total":     res.Total,
		},
	}
	s.journalize("batch_operations", operation, entity, env, started)

	// Partial failure is a legitimate batch outcome; the envelope's success
	// flag and per-item results carry the detail.
	out, _ := json.MarshalIndent(env, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

// result renders the envelope as tool output. Failures use the MCP error
// result but still carry the full envelope JSON.
func result(env ops.Envelope) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(env, "", "  ")
	if !env.Success {
		return mcp.NewToolResultError(string(out))
	}
	return mcp.NewToolResultText(string(out))
}

func filterArgs(req mcp.CallToolRequest) map[string]string {
	raw, _ := req.GetArguments()["filters"].(map[string]any)
	if len(raw) == 0 {
		return nil
	}
	filters := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			filters[k] = s
		}
	}
	return filters
}

func (s *Server) journalize(tool, operation, entity string, env ops.Envelope, started time.Time) {
	msg := ""
	if env.Error != nil {
		msg = env.Error.Message
	}
	err := s.journal.Append(journal.Record{
		Tool:      tool,
		Operation: operation,
		Entity:    entity,
		Success:   env.Success,
		Message:   msg,
		Duration:  time.Since(started),
	})
	if err != nil {
		s.log.Debug("journal append failed", slog.String("error", err.Error()))
	}
}
