package mcpadapter

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/mako-assistant/internal/core/domain"
	"github.com/kirillkom/mako-assistant/internal/core/ports"
)

const (
	serverName    = "mako-assistant"
	serverVersion = "1.0.0"
	endpointPath  = "/mcp"
)

// Server exposes search and reasoning as MCP tools.
type Server struct {
	search ports.SearchService
	reason ports.ReasoningService
	mcp    *server.MCPServer
}

func New(search ports.SearchService, reason ports.ReasoningService) *Server {
	s := &Server{
		search: search,
		reason: reason,
		mcp: server.NewMCPServer(
			serverName,
			serverVersion,
			server.WithToolCapabilities(false),
			server.WithInstructions("Retrieval and reasoning over German energy-market regulations (GPKE, WiM, MaBiS, EDIFACT guides)."),
		),
	}

	s.mcp.AddTool(searchTool(), s.handleSearch)
	s.mcp.AddTool(reasonTool(), s.handleReason)
	return s
}

// Handler serves the MCP streamable HTTP transport at /mcp.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(endpointPath))
}

func searchTool() mcp.Tool {
	return mcp.NewTool("search", withQueryOptions(
		"Search the regulation corpus with intent analysis, multi-phase retrieval and reranking",
	)...)
}

func reasonTool() mcp.Tool {
	return mcp.NewTool("reason", withQueryOptions(
		"Answer a question from retrieved context with iterative quality refinement",
	)...)
}

func withQueryOptions(description string) []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural-language question, German or English")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results"), mcp.Min(1), mcp.Max(50)),
		mcp.WithNumber("score_threshold", mcp.Description("Minimum similarity score"), mcp.Min(0), mcp.Max(1)),
		mcp.WithString("collection", mcp.Description("Collection override")),
		mcp.WithBoolean("use_hyde", mcp.Description("Embed a hypothetical answer instead of the query")),
		mcp.WithBoolean("use_filters", mcp.Description("Restrict retrieval by detected intent")),
	}
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	searchReq, err := toSearchRequest(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.search.Search(ctx, searchReq)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(resp)
}

func (s *Server) handleReason(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	searchReq, err := toSearchRequest(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, resp, err := s.reason.Reason(ctx, searchReq)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sources := 0
	if resp != nil {
		sources = len(resp.Results)
	}
	return jsonResult(map[string]any{
		"response":       result.Response,
		"final_quality":  result.FinalQuality,
		"terminal_state": result.TerminalState,
		"api_calls_used": result.APICallsUsed,
		"sources":        sources,
	})
}

func toSearchRequest(req mcp.CallToolRequest) (domain.SearchRequest, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return domain.SearchRequest{}, err
	}
	return domain.SearchRequest{
		Query: query,
		Options: domain.SearchOptions{
			UseHyDE:          req.GetBool("use_hyde", true),
			UseFilters:       req.GetBool("use_filters", true),
			UseOptimizations: true,
			UseCache:         true,
			CollectionName:   req.GetString("collection", ""),
			Limit:            req.GetInt("limit", 0),
			ScoreThreshold:   req.GetFloat("score_threshold", 0),
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
