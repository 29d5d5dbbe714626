package external

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/genegpt-server/internal/domain"
)

const (
	defaultPubChemURL  = "https://pubchem.ncbi.nlm.nih.gov/rest/pug"
	pubchemPropertySet = "MolecularFormula,MolecularWeight,CanonicalSMILES,InChIKey"
)

var cidPattern = regexp.MustCompile(`(?i)^(?:cid\s*)?(\d+)$`)

// PubChemClient looks up compounds by name or CID.
type PubChemClient struct {
	rest *restClient
}

// NewPubChemClient creates a new PubChem PUG REST client
func NewPubChemClient(config domain.APIConfig) *PubChemClient {
	return &PubChemClient{rest: newRESTClient("PubChem", config, defaultPubChemURL)}
}

type pubchemCIDs struct {
	IdentifierList struct {
		CID []int `json:"CID"`
	} `json:"IdentifierList"`
}

type pubchemDescription struct {
	InformationList struct {
		Information []struct {
			Title string `json:"Title"`
		} `json:"Information"`
	} `json:"InformationList"`
}

// MolecularWeight has been served both as a number and as a string.
type pubchemProperties struct {
	PropertyTable struct {
		Properties []struct {
			MolecularFormula   string `json:"MolecularFormula"`
			MolecularWeight    any    `json:"MolecularWeight"`
			CanonicalSMILES    string `json:"CanonicalSMILES"`
			ConnectivitySMILES string `json:"ConnectivitySMILES"`
			InChIKey           string `json:"InChIKey"`
		} `json:"Properties"`
	} `json:"PropertyTable"`
}

// Fetch implements domain.Fetcher. subCommand "3d" asks for the 3D viewer link.
func (c *PubChemClient) Fetch(ctx context.Context, searchTerm, subCommand string) (map[string]any, error) {
	term := strings.TrimSpace(searchTerm)
	if term == "" {
		return nil, fmt.Errorf("PubChem search term cannot be empty")
	}

	var cid int
	name := capitalize(term)
	if m := cidPattern.FindStringSubmatch(term); m != nil {
		cid, _ = strconv.Atoi(m[1])
		name = c.title(ctx, cid)
	} else {
		found, err := c.lookupName(ctx, term)
		if err != nil {
			return nil, err
		}
		cid = found
	}

	data := map[string]any{
		"query":               term,
		"cid":                 cid,
		"name":                name,
		"molecular_formula":   "Unknown",
		"molecular_weight":    "Unknown",
		"canonical_smiles":    "",
		"inchi_key":           "",
		"pubchem_url":         fmt.Sprintf("https://pubchem.ncbi.nlm.nih.gov/compound/%d", cid),
		"structure_image_url": fmt.Sprintf("%s/compound/cid/%d/PNG?image_size=300x300", defaultPubChemURL, cid),
		"structure_3d_url":    fmt.Sprintf("https://pubchem.ncbi.nlm.nih.gov/compound/%d#section=3D-Conformer", cid),
		"show_3d":             strings.EqualFold(strings.TrimSpace(subCommand), "3d"),
	}

	// Properties are best effort; the CID alone is a useful answer.
	var props pubchemProperties
	path := fmt.Sprintf("compound/cid/%d/property/%s/JSON", cid, pubchemPropertySet)
	if err := c.rest.getJSON(ctx, c.rest.endpoint(path, nil), &props); err == nil && len(props.PropertyTable.Properties) > 0 {
		p := props.PropertyTable.Properties[0]
		if p.MolecularFormula != "" {
			data["molecular_formula"] = p.MolecularFormula
		}
		if p.MolecularWeight != nil {
			data["molecular_weight"] = fmt.Sprint(p.MolecularWeight)
		}
		data["canonical_smiles"] = firstNonBlank(p.CanonicalSMILES, p.ConnectivitySMILES)
		data["inchi_key"] = p.InChIKey
	}
	return data, nil
}

func (c *PubChemClient) lookupName(ctx context.Context, name string) (int, error) {
	var ids pubchemCIDs
	path := "compound/name/" + escapePath(name) + "/cids/JSON"
	if err := c.rest.getJSON(ctx, c.rest.endpoint(path, nil), &ids); err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, notFoundf("no compound found for '%s'", name)
		}
		return 0, fmt.Errorf("PubChem search for %s failed: %w", name, err)
	}
	if len(ids.IdentifierList.CID) == 0 {
		return 0, notFoundf("no compound found for '%s'", name)
	}
	return ids.IdentifierList.CID[0], nil
}

func (c *PubChemClient) title(ctx context.Context, cid int) string {
	var desc pubchemDescription
	path := fmt.Sprintf("compound/cid/%d/description/JSON", cid)
	if err := c.rest.getJSON(ctx, c.rest.endpoint(path, nil), &desc); err == nil {
		for _, info := range desc.InformationList.Information {
			if info.Title != "" {
				return info.Title
			}
		}
	}
	return fmt.Sprintf("Compound %d", cid)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
