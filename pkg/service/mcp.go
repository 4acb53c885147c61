package service

// This file implements the MCP surface of the entity store. Every tool maps
// 1:1 onto a storage or sync operation and returns its result as JSON text
// content, so MCP agents see the same semantics the HTTP surface does.

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/theapemachine/engram/pkg/config"
	"github.com/theapemachine/engram/pkg/entity"
	"github.com/theapemachine/engram/pkg/errors"
	"github.com/theapemachine/engram/pkg/graph"
	"github.com/theapemachine/engram/pkg/query"
	"github.com/theapemachine/engram/pkg/stores"
	"github.com/theapemachine/engram/pkg/sync"
)

/*
MCPServer exposes the entity store to MCP clients over stdio. Tool arguments
mirror the query and sync parameter names, so agents that learned one surface
can drive the other.
*/
type MCPServer struct {
	storage stores.Storage
	config  *config.Config
	engine  *sync.Engine
	srv     *server.MCPServer
}

func NewMCPServer(storage stores.Storage, cfg *config.Config) (*MCPServer, error) {
	if storage == nil {
		return nil, errors.NewError(errors.ErrMissingStorage{})
	}

	if cfg == nil {
		return nil, errors.NewError(errors.ErrMissingConfig{})
	}

	srv := &MCPServer{
		storage: storage,
		config:  cfg,
		engine:  sync.NewEngine(storage),
		srv: server.NewMCPServer(
			"engram",
			"1.0.0",
			server.WithLogging(),
		),
	}

	srv.registerTools()
	return srv, nil
}

// Serve speaks MCP over stdin/stdout until the client disconnects.
func (srv *MCPServer) Serve() error {
	return server.ServeStdio(srv.srv)
}

func (srv *MCPServer) registerTools() {
	srv.srv.AddTool(buildMemoryStoreTool(), srv.handleMemoryStore)
	srv.srv.AddTool(buildMemoryGetTool(), srv.handleMemoryGet)
	srv.srv.AddTool(buildMemoryQueryTool(), srv.handleMemoryQuery)
	srv.srv.AddTool(buildMemoryDeleteTool(), srv.handleMemoryDelete)
	srv.srv.AddTool(buildMemoryRelateTool(), srv.handleMemoryRelate)
	srv.srv.AddTool(buildMemoryPathsTool(), srv.handleMemoryPaths)
	srv.srv.AddTool(buildMemorySyncTool(), srv.handleMemorySync)
	srv.srv.AddTool(buildMemoryStatsTool(), srv.handleMemoryStats)
}

// ---------------------------------------------------------------------------
// Tool builders (schema only – no execution logic)
// ---------------------------------------------------------------------------

func buildMemoryStoreTool() mcp.Tool {
	return mcp.NewTool(
		"memory_store",
		mcp.WithDescription("Stores an entity in the shared memory store and returns its ID."),
		mcp.WithString("entity_type",
			mcp.Description("Entity type discriminator (e.g. 'task', 'knowledge', 'context')"),
			mcp.Required(),
		),
		mcp.WithObject("data",
			mcp.Description("Entity payload as a JSON object"),
			mcp.Required(),
		),
		mcp.WithString("id",
			mcp.Description("Entity ID – generated from the type when omitted"),
		),
		mcp.WithString("agent",
			mcp.Description("Acting agent – defaults to the store identity"),
		),
	)
}

func buildMemoryGetTool() mcp.Tool {
	return mcp.NewTool(
		"memory_get",
		mcp.WithDescription("Retrieves a stored entity by type and ID."),
		mcp.WithString("entity_type",
			mcp.Description("Entity type discriminator"),
			mcp.Required(),
		),
		mcp.WithString("id",
			mcp.Description("Entity ID"),
			mcp.Required(),
		),
	)
}

func buildMemoryQueryTool() mcp.Tool {
	return mcp.NewTool(
		"memory_query",
		mcp.WithDescription("Queries entities with filters, sorting, and pagination."),
		mcp.WithArray("entity_types",
			mcp.Description("Entity types to include – omit for all"),
		),
		mcp.WithString("agent",
			mcp.Description("Only entities owned by this agent"),
		),
		mcp.WithString("text_search",
			mcp.Description("Case-insensitive substring search over entity payloads"),
		),
		mcp.WithObject("field_filters",
			mcp.Description("Payload field equality filters, keyed by dot path"),
		),
		mcp.WithString("sort_by",
			mcp.Description("Payload field to sort by – timestamp when omitted"),
		),
		mcp.WithString("sort_order",
			mcp.Description("Sort direction"),
			mcp.Enum("asc", "desc"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Page size (default 50, -1 for everything)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Records to skip before the page starts"),
		),
	)
}

func buildMemoryDeleteTool() mcp.Tool {
	return mcp.NewTool(
		"memory_delete",
		mcp.WithDescription("Deletes a stored entity by type and ID."),
		mcp.WithString("entity_type",
			mcp.Description("Entity type discriminator"),
			mcp.Required(),
		),
		mcp.WithString("id",
			mcp.Description("Entity ID"),
			mcp.Required(),
		),
	)
}

func buildMemoryRelateTool() mcp.Tool {
	return mcp.NewTool(
		"memory_relate",
		mcp.WithDescription("Creates a typed relationship between two stored entities."),
		mcp.WithString("source_id",
			mcp.Description("Source entity ID"),
			mcp.Required(),
		),
		mcp.WithString("source_type",
			mcp.Description("Source entity type"),
			mcp.Required(),
		),
		mcp.WithString("target_id",
			mcp.Description("Target entity ID"),
			mcp.Required(),
		),
		mcp.WithString("target_type",
			mcp.Description("Target entity type"),
			mcp.Required(),
		),
		mcp.WithString("relationship_type",
			mcp.Description("Edge semantic (e.g. 'depends_on', 'references', 'contains')"),
			mcp.Required(),
		),
		mcp.WithString("direction",
			mcp.Description("Traversal direction (default 'unidirectional')"),
			mcp.Enum("unidirectional", "bidirectional", "inverse"),
		),
		mcp.WithNumber("strength",
			mcp.Description("Edge strength in [0, 1] – default medium (0.5)"),
		),
		mcp.WithString("description",
			mcp.Description("Human-readable note on the edge"),
		),
		mcp.WithString("agent",
			mcp.Description("Acting agent – defaults to the store identity"),
		),
	)
}

func buildMemoryPathsTool() mcp.Tool {
	return mcp.NewTool(
		"memory_paths",
		mcp.WithDescription("Finds paths between two entities through the relationship graph."),
		mcp.WithString("source_id",
			mcp.Description("Entity to start from"),
			mcp.Required(),
		),
		mcp.WithString("target_id",
			mcp.Description("Entity to reach"),
			mcp.Required(),
		),
		mcp.WithString("algorithm",
			mcp.Description("Traversal algorithm (default 'breadth_first')"),
			mcp.Enum("breadth_first", "depth_first", "dijkstra"),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("Maximum hops to explore (0 = unlimited)"),
		),
	)
}

func buildMemorySyncTool() mcp.Tool {
	return mcp.NewTool(
		"memory_sync",
		mcp.WithDescription("Reconciles entities across agents using a merge strategy."),
		mcp.WithArray("agents",
			mcp.Description("Agents to reconcile – fewer than two is a no-op"),
			mcp.Required(),
		),
		mcp.WithString("strategy",
			mcp.Description("Merge strategy – 'latest_wins', 'intelligent_merge', 'priority_wins:<agent>', or 'merge_with_conflict_resolution' (default from config)"),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Compute the merge without writing anything"),
		),
	)
}

func buildMemoryStatsTool() mcp.Tool {
	return mcp.NewTool(
		"memory_stats",
		mcp.WithDescription("Reports storage and relationship graph statistics."),
	)
}

// ---------------------------------------------------------------------------
// Tool handlers
// ---------------------------------------------------------------------------

func (srv *MCPServer) handleMemoryStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	entityType, _ := args["entity_type"].(string)
	if entityType == "" {
		return nil, fmt.Errorf("entity_type parameter is required")
	}

	data, err := payloadBytes(args["data"])
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("data parameter is required")
	}

	id, _ := args["id"].(string)
	if id == "" {
		id = entityType + "-" + uuid.NewString()
	}

	record := entity.NewGenericEntity(id, entityType, srv.agentFor(args), data)

	if err := srv.storage.Store(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store entity: %v", err)
	}

	result := map[string]string{
		"id":          record.ID,
		"entity_type": record.EntityType,
		"agent":       record.Agent,
		"status":      "success",
	}
	resultJSON, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (srv *MCPServer) handleMemoryGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	entityType, _ := args["entity_type"].(string)
	id, _ := args["id"].(string)
	if entityType == "" || id == "" {
		return nil, fmt.Errorf("entity_type and id parameters are required")
	}

	record, err := srv.storage.Get(ctx, id, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %v", err)
	}
	if record == nil {
		return nil, fmt.Errorf("entity %s of type %s not found", id, entityType)
	}

	resultJSON, _ := json.MarshalIndent(record, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (srv *MCPServer) handleMemoryQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	filter := &query.Filter{
		EntityTypes: stringSlice(args["entity_types"]),
		Limit:       intArg(args, "limit", 0),
		Offset:      intArg(args, "offset", 0),
	}
	filter.Agent, _ = args["agent"].(string)
	filter.TextSearch, _ = args["text_search"].(string)
	filter.SortBy, _ = args["sort_by"].(string)

	if order, _ := args["sort_order"].(string); order != "" {
		filter.SortOrder = query.Order(order)
	}

	if fields, ok := args["field_filters"].(map[string]any); ok {
		filter.FieldFilters = fields
	}

	result, err := srv.storage.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query failed: %v", err)
	}

	resultJSON, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (srv *MCPServer) handleMemoryDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	entityType, _ := args["entity_type"].(string)
	id, _ := args["id"].(string)
	if entityType == "" || id == "" {
		return nil, fmt.Errorf("entity_type and id parameters are required")
	}

	if err := srv.storage.Delete(ctx, id, entityType); err != nil {
		return nil, fmt.Errorf("failed to delete entity: %v", err)
	}

	result := map[string]string{
		"id":          id,
		"entity_type": entityType,
		"status":      "deleted",
	}
	resultJSON, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (srv *MCPServer) handleMemoryRelate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	sourceID, _ := args["source_id"].(string)
	sourceType, _ := args["source_type"].(string)
	targetID, _ := args["target_id"].(string)
	targetType, _ := args["target_type"].(string)
	relType, _ := args["relationship_type"].(string)

	if sourceID == "" || sourceType == "" || targetID == "" || targetType == "" || relType == "" {
		return nil, fmt.Errorf("source_id, source_type, target_id, target_type, and relationship_type parameters are required")
	}

	rel := entity.NewRelationship(
		sourceID, sourceType, targetID, targetType,
		entity.RelationshipType(relType), srv.agentFor(args),
	)

	if direction, _ := args["direction"].(string); direction != "" {
		rel.WithDirection(entity.Direction(direction))
	}
	if strength, ok := args["strength"].(float64); ok {
		rel.WithStrength(entity.CustomStrength(strength))
	}
	if description, _ := args["description"].(string); description != "" {
		rel.WithDescription(description)
	}

	if err := srv.storage.StoreRelationship(ctx, rel); err != nil {
		return nil, fmt.Errorf("failed to create relationship: %v", err)
	}

	result := map[string]string{
		"relationship_id":   rel.ID,
		"source_id":         sourceID,
		"target_id":         targetID,
		"relationship_type": relType,
		"status":            "success",
	}
	resultJSON, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (srv *MCPServer) handleMemoryPaths(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	sourceID, _ := args["source_id"].(string)
	targetID, _ := args["target_id"].(string)
	if sourceID == "" || targetID == "" {
		return nil, fmt.Errorf("source_id and target_id parameters are required")
	}

	name, _ := args["algorithm"].(string)
	algorithm, err := graph.ParseAlgorithm(name)
	if err != nil {
		return nil, err
	}

	paths, err := srv.storage.FindPaths(ctx, sourceID, targetID, algorithm, intArg(args, "max_depth", 0))
	if err != nil {
		return nil, fmt.Errorf("path search failed: %v", err)
	}

	formatted := map[string]any{
		"source_id": sourceID,
		"target_id": targetID,
		"algorithm": algorithm,
		"count":     len(paths),
		"paths":     paths,
	}
	resultJSON, _ := json.MarshalIndent(formatted, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (srv *MCPServer) handleMemorySync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	agents := stringSlice(args["agents"])
	if len(agents) == 0 {
		return nil, fmt.Errorf("agents parameter is required")
	}

	var strategy sync.Strategy
	var err error
	if raw, _ := args["strategy"].(string); raw != "" {
		strategy, err = sync.ParseStrategy(raw)
	} else {
		strategy, err = srv.config.Strategy()
	}
	if err != nil {
		return nil, err
	}

	dryRun, _ := args["dry_run"].(bool)

	result, err := srv.engine.Sync(ctx, agents, strategy, dryRun)
	if err != nil {
		return nil, fmt.Errorf("sync failed: %v", err)
	}

	resultJSON, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (srv *MCPServer) handleMemoryStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := srv.storage.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect storage stats: %v", err)
	}

	relStats, err := srv.storage.RelationshipStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to collect graph stats: %v", err)
	}

	formatted := map[string]any{
		"agent":   srv.storage.Agent(),
		"storage": stats,
		"graph":   relStats,
	}
	resultJSON, _ := json.MarshalIndent(formatted, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

// agentFor resolves the acting agent: explicit argument, then the store
// identity, then the workspace default.
func (srv *MCPServer) agentFor(args map[string]any) string {
	if agent, _ := args["agent"].(string); agent != "" {
		return agent
	}

	if agent := srv.storage.Agent(); agent != "" {
		return agent
	}

	return srv.config.Workspace.DefaultAgent
}

// payloadBytes accepts a payload as a JSON object or as a JSON-encoded string,
// depending on how the client constructed the argument object.
func payloadBytes(raw any) (json.RawMessage, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid data payload: %v", err)
		}
		return data, nil
	case string:
		if !json.Valid([]byte(v)) {
			return nil, fmt.Errorf("data parameter is not valid JSON")
		}
		return json.RawMessage(v), nil
	}

	return nil, fmt.Errorf("unsupported data payload type %T", raw)
}

// stringSlice accepts a list argument as a JSON array or as a comma-separated
// string.
func stringSlice(raw any) []string {
	switch v := raw.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i, part := range parts {
			parts[i] = strings.TrimSpace(part)
		}
		return parts
	}

	return nil
}

// intArg reads a numeric argument that may arrive as float64 (JSON spec),
// int, or string.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}

	return fallback
}
