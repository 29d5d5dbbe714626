package external

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"regexp"
	"strings"
)

const (
	pubmedMaxResults     = 5
	pubmedMaxAuthors     = 5
	pubmedAbstractLength = 300
)

var xmlTag = regexp.MustCompile(`<[^>]+>`)

// pubmedSummary is one esummary document from the pubmed database.
type pubmedSummary struct {
	Title   string `json:"title"`
	PubDate string `json:"pubdate"`
	Source  string `json:"source"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

// PubmedArticleSet is the efetch XML payload; only abstracts are read from it.
type PubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []PubmedArticle `xml:"PubmedArticle"`
}

// PubmedArticle represents a complete article from PubMed
type PubmedArticle struct {
	MedlineCitation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			ArticleTitle string `xml:"ArticleTitle"`
			Abstract     struct {
				AbstractText []struct {
					Inner string `xml:",innerxml"`
				} `xml:"AbstractText"`
			} `xml:"Abstract"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
}

// searchPubMed runs esearch by relevance, then esummary for citation
// details and efetch for abstracts. Abstracts are optional.
func (c *NCBIClient) searchPubMed(ctx context.Context, query string) (map[string]any, error) {
	ids, _, err := c.search(ctx, "pubmed", query, pubmedMaxResults, "relevance")
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, notFoundf("no PubMed results found for '%s'", query)
	}

	docs, err := c.summary(ctx, "pubmed", ids)
	if err != nil {
		return nil, err
	}
	abstracts := c.abstracts(ctx, ids)

	results := make([]map[string]any, 0, len(ids))
	for _, pmid := range ids {
		var doc pubmedSummary
		if raw, ok := docs[pmid]; ok {
			_ = json.Unmarshal(raw, &doc)
		}

		abstract, ok := abstracts[pmid]
		if !ok {
			abstract = "Abstract not available"
		}

		results = append(results, map[string]any{
			"pmid":     pmid,
			"title":    orDefault(doc.Title, "No title"),
			"authors":  formatAuthors(doc),
			"year":     publicationYear(doc.PubDate),
			"journal":  orDefault(doc.Source, "Unknown Journal"),
			"abstract": abstract,
			"link":     "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/",
		})
	}

	return map[string]any{
		"source":  "pubmed",
		"query":   query,
		"results": results,
	}, nil
}

func (c *NCBIClient) abstracts(ctx context.Context, ids []string) map[string]string {
	params := c.params("pubmed")
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")
	params.Set("rettype", "abstract")

	out := make(map[string]string, len(ids))
	body, err := c.rest.getText(ctx, c.rest.endpoint("efetch.fcgi", params))
	if err != nil {
		return out
	}

	var set PubmedArticleSet
	if err := xml.Unmarshal([]byte(body), &set); err != nil {
		return out
	}
	for _, article := range set.Articles {
		texts := article.MedlineCitation.Article.Abstract.AbstractText
		if len(texts) == 0 {
			continue
		}
		out[strings.TrimSpace(article.MedlineCitation.PMID)] = truncateAbstract(cleanXMLText(texts[0].Inner))
	}
	return out
}

func cleanXMLText(s string) string {
	s = xmlTag.ReplaceAllString(s, "")
	s = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&", "&quot;", "\"", "&apos;", "'").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func truncateAbstract(s string) string {
	runes := []rune(s)
	if len(runes) <= pubmedAbstractLength {
		return s
	}
	return string(runes[:pubmedAbstractLength]) + "..."
}

func formatAuthors(doc pubmedSummary) string {
	names := make([]string, 0, pubmedMaxAuthors)
	for i, a := range doc.Authors {
		if i == pubmedMaxAuthors {
			break
		}
		names = append(names, a.Name)
	}
	authors := strings.Join(names, ", ")
	if len(doc.Authors) > pubmedMaxAuthors {
		authors += " et al."
	}
	return authors
}

func publicationYear(pubDate string) string {
	fields := strings.Fields(pubDate)
	if len(fields) == 0 {
		return "N/A"
	}
	return fields[0]
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
