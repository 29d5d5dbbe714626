// Package domain contains the core types shared by the GeneGPT query pipeline:
// the classification decision record, database fetch results, conversation
// turns and the HTTP/MCP request and response shapes built on top of them.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// QueryType separates small talk from questions that need a database lookup.
type QueryType string

const (
	QueryTypeGeneral QueryType = "general"
	QueryTypeMedical QueryType = "medical"
)

// DBType names one of the external databases a query can be routed to.
type DBType string

const (
	DBUniProt     DBType = "uniprot"
	DBString      DBType = "string"
	DBPubChem     DBType = "pubchem"
	DBPDB         DBType = "pdb"
	DBNCBI        DBType = "ncbi"
	DBKEGG        DBType = "kegg"
	DBEnsembl     DBType = "ensembl"
	DBClinVar     DBType = "clinvar"
	DBImageSearch DBType = "image_search"
)

// AllDBTypes lists every routable database in a stable order.
var AllDBTypes = []DBType{
	DBUniProt, DBString, DBPubChem, DBPDB, DBNCBI,
	DBKEGG, DBEnsembl, DBClinVar, DBImageSearch,
}

// IsValid reports whether d names a supported database.
func (d DBType) IsValid() bool {
	for _, known := range AllDBTypes {
		if d == known {
			return true
		}
	}
	return false
}

// DisplayName returns the human-facing database name used in replies.
func (d DBType) DisplayName() string {
	switch d {
	case DBUniProt:
		return "UniProt"
	case DBString:
		return "STRING"
	case DBPubChem:
		return "PubChem"
	case DBPDB:
		return "PDB"
	case DBNCBI:
		return "NCBI"
	case DBKEGG:
		return "KEGG"
	case DBEnsembl:
		return "Ensembl"
	case DBClinVar:
		return "ClinVar"
	case DBImageSearch:
		return "image search"
	default:
		return string(d)
	}
}

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message of a conversation supplied by the caller.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Classification is the routing decision produced for one user message.
type Classification struct {
	QueryType          QueryType `json:"query_type"`
	Reply              string    `json:"reply,omitempty"`
	NeedsClarification bool      `json:"needs_clarification"`
	FollowUpQuestion   string    `json:"follow_up_question,omitempty"`
	DBType             DBType    `json:"db_type,omitempty"`
	SearchTerm         string    `json:"search_term,omitempty"`
	SubCommand         string    `json:"sub_command,omitempty"`

	// Isoform marks requests answered by the deterministic isoform formatter.
	Isoform *IsoformRequest `json:"-"`
	// AnnotatedMessage replaces the user message during generation when the
	// subject was recovered from history.
	AnnotatedMessage string `json:"-"`
}

// IsoformRequest describes which isoforms of a gene the user asked for.
type IsoformRequest struct {
	// Specific is false when every isoform is requested.
	Specific bool
	Number   int
}

// SubCommand encodes the request for the UniProt collaborator.
func (r *IsoformRequest) SubCommand() string {
	if r == nil {
		return ""
	}
	if r.Specific {
		return fmt.Sprintf("isoform %d", r.Number)
	}
	return "isoforms"
}

// DefaultFollowUpQuestion is used when a clarification is requested without a question.
const DefaultFollowUpQuestion = "Could you please provide more details about your query?"

// Normalize enforces the field invariants of a classification in place:
// general queries carry no routing fields, clarification requests carry a
// question and no routing fields, and medical queries carry no reply.
func (c *Classification) Normalize() {
	c.SearchTerm = strings.TrimSpace(c.SearchTerm)
	c.SubCommand = strings.ToLower(strings.TrimSpace(c.SubCommand))

	switch {
	case c.QueryType == QueryTypeGeneral:
		c.NeedsClarification = false
		c.FollowUpQuestion = ""
		c.clearRouting()
	case c.NeedsClarification:
		c.QueryType = QueryTypeMedical
		c.Reply = ""
		if strings.TrimSpace(c.FollowUpQuestion) == "" {
			c.FollowUpQuestion = DefaultFollowUpQuestion
		}
		c.clearRouting()
	default:
		c.QueryType = QueryTypeMedical
		c.Reply = ""
		c.FollowUpQuestion = ""
		if c.DBType != "" && !c.DBType.IsValid() {
			c.DBType = DBType(strings.ToLower(string(c.DBType)))
		}
	}
}

func (c *Classification) clearRouting() {
	c.DBType = ""
	c.SearchTerm = ""
	c.SubCommand = ""
	c.Isoform = nil
}

// Validate checks the invariants Normalize establishes.
func (c *Classification) Validate() error {
	switch c.QueryType {
	case QueryTypeGeneral:
		if c.DBType != "" || c.SearchTerm != "" || c.NeedsClarification {
			return errors.New("general classification must not carry routing fields")
		}
	case QueryTypeMedical:
		if c.NeedsClarification {
			if c.FollowUpQuestion == "" {
				return errors.New("clarification requires a follow-up question")
			}
			if c.DBType != "" || c.SearchTerm != "" {
				return errors.New("clarification must not carry routing fields")
			}
			return nil
		}
		if !c.DBType.IsValid() {
			return fmt.Errorf("unknown database type: %q", c.DBType)
		}
		if c.SearchTerm == "" {
			return errors.New("medical classification requires a search term")
		}
	default:
		return fmt.Errorf("unknown query type: %q", c.QueryType)
	}
	return nil
}

// DatabaseResult is the normalized outcome of one database fetch.
// Data is only meaningful when Success is true; Error only when it is false.
type DatabaseResult struct {
	DBType     DBType         `json:"db_type"`
	SearchTerm string         `json:"search_term"`
	Success    bool           `json:"success"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// NewSuccessResult builds a successful result.
func NewSuccessResult(db DBType, term string, data map[string]any) DatabaseResult {
	if data == nil {
		data = map[string]any{}
	}
	return DatabaseResult{DBType: db, SearchTerm: term, Success: true, Data: data}
}

// NewFailureResult builds a failed result. An empty reason is replaced so
// that failures always carry an explanation.
func NewFailureResult(db DBType, term, reason string) DatabaseResult {
	if strings.TrimSpace(reason) == "" {
		reason = "unknown error"
	}
	return DatabaseResult{DBType: db, SearchTerm: term, Success: false, Error: reason}
}

// ChatRequest is the body of the chat endpoint. The last message is the
// current query; everything before it is history.
type ChatRequest struct {
	Messages []Turn `json:"messages"`
	ChatID   string `json:"chat_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// Split returns the current message and the preceding history.
func (r *ChatRequest) Split() (string, []Turn, error) {
	if len(r.Messages) == 0 {
		return "", nil, NewValidationError("messages", "at least one message is required", nil)
	}
	last := r.Messages[len(r.Messages)-1]
	if strings.TrimSpace(last.Content) == "" {
		return "", nil, NewValidationError("messages", "the last message must not be empty", last.Content)
	}
	return last.Content, r.Messages[:len(r.Messages)-1], nil
}

// ChatResponse is what a processed query returns to the caller.
type ChatResponse struct {
	Reply string `json:"reply"`
	HTML  string `json:"html,omitempty"`
}

// QueryLogEntry records how one sub-query was handled.
type QueryLogEntry struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	DBType        DBType    `json:"db_type,omitempty"`
	SearchTerm    string    `json:"search_term,omitempty"`
	Decision      string    `json:"decision"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}
