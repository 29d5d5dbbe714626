package external

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/genegpt-server/internal/domain"
	"github.com/genegpt-server/internal/metrics"
)

// Catalog owns one resilient fetcher per database and the cache they share.
type Catalog struct {
	fetchers map[domain.DBType]*ResilientFetcher
	cache    *ResultCache
	images   *ImageSearchClient
	logger   *logrus.Logger
}

// NewCatalog builds every database client from configuration. When the
// cache is disabled fetches go straight to the breakers.
func NewCatalog(apis domain.ExternalAPIConfig, cacheConfig domain.CacheConfig, logger *logrus.Logger, m *metrics.Metrics) (*Catalog, error) {
	var cache *ResultCache
	if cacheConfig.Enabled {
		var err error
		cache, err = NewResultCache(cacheConfig, logger, m)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}
	}

	uniprot := NewUniProtClient(apis.UniProt)
	images := NewImageSearchClient(apis.Google)
	if !images.Enabled() {
		logger.Warn("Google API key or CSE id not set; image search is disabled")
	}

	clients := map[domain.DBType]domain.Fetcher{
		domain.DBUniProt:     uniprot,
		domain.DBPDB:         NewPDBClient(apis.PDB, uniprot),
		domain.DBString:      NewSTRINGClient(apis.String),
		domain.DBPubChem:     NewPubChemClient(apis.PubChem),
		domain.DBNCBI:        NewNCBIClient(apis.NCBI),
		domain.DBKEGG:        NewKEGGClient(apis.KEGG),
		domain.DBEnsembl:     NewEnsemblClient(apis.Ensembl),
		domain.DBClinVar:     NewClinVarClient(apis.ClinVar),
		domain.DBImageSearch: images,
	}

	return newCatalog(clients, cache, images, DefaultCircuitBreakerConfig(), logger), nil
}

func newCatalog(clients map[domain.DBType]domain.Fetcher, cache *ResultCache, images *ImageSearchClient, breaker CircuitBreakerConfig, logger *logrus.Logger) *Catalog {
	c := &Catalog{
		fetchers: make(map[domain.DBType]*ResilientFetcher, len(clients)),
		cache:    cache,
		images:   images,
		logger:   logger,
	}
	for db, client := range clients {
		c.fetchers[db] = NewResilientFetcher(db, client, cache, breaker, logger)
	}
	return c
}

// Fetchers returns the fetchers keyed by database, ready for the router.
func (c *Catalog) Fetchers() map[domain.DBType]domain.Fetcher {
	out := make(map[domain.DBType]domain.Fetcher, len(c.fetchers))
	for db, f := range c.fetchers {
		out[db] = f
	}
	return out
}

// BreakerStates reports each breaker's state, keyed by database name.
func (c *Catalog) BreakerStates() map[string]string {
	out := make(map[string]string, len(c.fetchers))
	for db, f := range c.fetchers {
		out[string(db)] = f.State().String()
	}
	return out
}

// Databases lists the configured databases in sorted order.
func (c *Catalog) Databases() []string {
	out := make([]string, 0, len(c.fetchers))
	for db := range c.fetchers {
		out = append(out, string(db))
	}
	sort.Strings(out)
	return out
}

// ImageSearchEnabled reports whether the image search client has credentials.
func (c *Catalog) ImageSearchEnabled() bool {
	return c.images != nil && c.images.Enabled()
}

// Ping checks the shared cache.
func (c *Catalog) Ping(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Ping(ctx)
}

// Close releases the cache connections.
func (c *Catalog) Close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}
