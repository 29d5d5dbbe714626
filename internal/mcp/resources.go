package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/genegpt-server/internal/domain"
)

const databasesURI = "genegpt://databases"

const explorePromptName = "explore_gene"

type databaseInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Available   bool   `json:"available"`
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         databasesURI,
		Name:        "databases",
		Description: "Databases the lookup_database tool can query.",
		MIMEType:    "application/json",
	}, s.readDatabases)
}

func (s *Server) readDatabases(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	infos := make([]databaseInfo, 0, len(domain.AllDBTypes))
	for _, db := range domain.AllDBTypes {
		infos = append(infos, databaseInfo{
			Name:        string(db),
			DisplayName: db.DisplayName(),
			Available:   s.fetcher.Supports(db),
		})
	}
	payload, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding databases: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      databasesURI,
			MIMEType: "application/json",
			Text:     string(payload),
		}},
	}, nil
}

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(&mcp.Prompt{
		Name:        explorePromptName,
		Description: "Walk through function, structure, interactions and pathways of a gene.",
		Arguments: []*mcp.PromptArgument{{
			Name:        "gene",
			Description: "HGNC gene symbol, e.g. TP53",
			Required:    true,
		}},
	}, s.explorePrompt)
}

func (s *Server) explorePrompt(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	var gene string
	if req != nil && req.Params != nil {
		gene = strings.ToUpper(strings.TrimSpace(req.Params.Arguments["gene"]))
	}
	if gene == "" {
		return nil, fmt.Errorf("argument gene is required")
	}

	return &mcp.GetPromptResult{
		Description: "Explore " + gene,
		Messages: []*mcp.PromptMessage{{
			Role:    "user",
			Content: &mcp.TextContent{Text: renderExplorePrompt(gene)},
		}},
	}, nil
}

func renderExplorePrompt(gene string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Use the %s tool to build a short profile of %s. Ask one question per step:\n", askToolName, gene)
	steps := []string{
		"What is the function of %s?",
		"Show the 3D structure of %s",
		"What proteins interact with %s?",
		"Which KEGG pathways involve %s?",
		"Are there ClinVar variants in %s?",
	}
	for i, step := range steps {
		fmt.Fprintf(&b, "%d. "+step+"\n", i+1, gene)
	}
	b.WriteString("Summarise the answers and cite the database behind each fact.")
	return b.String()
}
