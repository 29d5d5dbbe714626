package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/genegpt-server/internal/domain"
)

const (
	askToolName    = "ask_genegpt"
	lookupToolName = "lookup_database"
)

// AskInput is the argument of the ask_genegpt tool.
type AskInput struct {
	Message string        `json:"message" jsonschema:"the question about a gene, protein, compound, structure or pathway"`
	History []domain.Turn `json:"history,omitempty" jsonschema:"earlier turns of the conversation, oldest first"`
}

// LookupInput is the argument of the lookup_database tool.
type LookupInput struct {
	DBType     string `json:"db_type" jsonschema:"one of uniprot, string, pubchem, pdb, ncbi, kegg, ensembl, clinvar, image_search"`
	SearchTerm string `json:"search_term" jsonschema:"gene symbol, accession, compound name or identifier to look up"`
	SubCommand string `json:"sub_command,omitempty" jsonschema:"optional database-specific qualifier such as isoforms or mmcif"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        askToolName,
		Description: "Answer a biomedical question using UniProt, PDB, STRING, PubChem, NCBI, KEGG, Ensembl and ClinVar data.",
	}, s.ask)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        lookupToolName,
		Description: "Fetch raw data for a term from one biological database.",
	}, s.lookup)

	s.logger.WithField("tool_count", 2).Debug("Registered MCP tools")
}

func (s *Server) ask(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", askToolName).Info("Tool invoked")

	if strings.TrimSpace(in.Message) == "" {
		return errorResult("message is required"), nil, nil
	}

	resp := s.processor.ProcessQuery(ctx, in.Message, in.History)
	return textResult(resp.Reply), nil, nil
}

func (s *Server) lookup(ctx context.Context, _ *mcp.CallToolRequest, in LookupInput) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":    lookupToolName,
		"db_type": in.DBType,
	}).Info("Tool invoked")

	db := domain.DBType(strings.ToLower(strings.TrimSpace(in.DBType)))
	if !db.IsValid() || !s.fetcher.Supports(db) {
		return errorResult(fmt.Sprintf("unknown database %q", in.DBType)), nil, nil
	}
	if strings.TrimSpace(in.SearchTerm) == "" {
		return errorResult("search_term is required"), nil, nil
	}

	result := s.fetcher.Fetch(ctx, db, in.SearchTerm, in.SubCommand)
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encoding result: %w", err)
	}

	out := textResult(string(payload))
	out.IsError = !result.Success
	return out, nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	r := textResult(msg)
	r.IsError = true
	return r
}
