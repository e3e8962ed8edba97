package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/ledger"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/queries"
	"github.com/Rafi-Ahmmed-Siyam/QueryNest-Server/internal/storage"
)

const recentQueriesURI = "querynest://queries/recent"

// MCPDeps holds dependencies for the MCP server. All tools are read-only.
type MCPDeps struct {
	Queries *queries.Service
	Ledger  *ledger.Ledger
}

// NewMCPServer creates an MCP server exposing the query catalog and the
// recommendation ledger.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"querynest",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("QueryNest: product questions and the alternatives people recommended for them."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_queries",
			mcp.WithDescription("List posted queries, newest first."),
			mcp.WithString("category", mcp.Description("Only queries in this category")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
		),
		mcpListQueries(deps),
	)

	s.AddTool(
		mcp.NewTool("get_query",
			mcp.WithDescription("Fetch one query by id."),
			mcp.WithString("id", mcp.Description("Query id"), mcp.Required()),
		),
		mcpGetQuery(deps),
	)

	s.AddTool(
		mcp.NewTool("list_recommendations",
			mcp.WithDescription("List the recommendations made on a query."),
			mcp.WithString("query_id", mcp.Description("Query id"), mcp.Required()),
		),
		mcpListRecommendations(deps),
	)

	s.AddTool(
		mcp.NewTool("recommender_activity",
			mcp.WithDescription("List recommendations received on a user's queries, or made by the user."),
			mcp.WithString("email", mcp.Description("User email"), mcp.Required()),
			mcp.WithBoolean("as_recommender", mcp.Description("List recommendations the user made instead")),
		),
		mcpRecommenderActivity(deps),
	)

	s.AddResource(
		mcp.NewResource(
			recentQueriesURI,
			"Recent Queries",
			mcp.WithResourceDescription("The most recent queries (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpListQueries(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}
		docs, err := deps.Queries.List(ctx, queries.ListOptions{
			Category: req.GetString("category", ""),
			Limit:    limit,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("listing queries failed: %v", err)), nil
		}
		return mcpJSON(docs), nil
	}
}

func mcpGetQuery(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		doc, err := deps.Queries.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("query %s not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("fetching query failed: %v", err)), nil
		}
		return mcpJSON(doc), nil
	}
}

func mcpListRecommendations(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		queryID, err := req.RequireString("query_id")
		if err != nil {
			return mcpError("query_id is required"), nil
		}
		docs, err := deps.Ledger.ListByQuery(ctx, queryID)
		if err != nil {
			return mcpError(fmt.Sprintf("listing recommendations failed: %v", err)), nil
		}
		return mcpJSON(docs), nil
	}
}

func mcpRecommenderActivity(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		email, err := req.RequireString("email")
		if err != nil {
			return mcpError("email is required"), nil
		}
		docs, err := deps.Ledger.ListForPrincipal(ctx, email, req.GetBool("as_recommender", false))
		if err != nil {
			return mcpError(fmt.Sprintf("listing recommendations failed: %v", err)), nil
		}
		return mcpJSON(docs), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		docs, err := deps.Queries.List(ctx, queries.ListOptions{Limit: 10})
		if err != nil {
			return nil, fmt.Errorf("failed to list recent queries: %w", err)
		}

		type querySummary struct {
			ID              string `json:"id"`
			Category        string `json:"category,omitempty"`
			PosterEmail     string `json:"poster_email,omitempty"`
			PostedAt        string `json:"posted_at,omitempty"`
			Recommendations int64  `json:"recommendations"`
		}

		summaries := make([]querySummary, len(docs))
		for i, d := range docs {
			summaries[i] = querySummary{
				ID:              d.ID(),
				Category:        d.String(queries.FieldCategory),
				PosterEmail:     d.String(queries.FieldPosterEmail),
				PostedAt:        d.String(queries.FieldPostedAt),
				Recommendations: d.Int64(queries.FieldCount),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal queries: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal results: %v", err))
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
