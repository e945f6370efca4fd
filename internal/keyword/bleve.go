// Package keyword provides a typo-tolerant index over chunk names, backed by an
// in-memory Bleve index.
package keyword

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/hyperjump/semdup/internal/models"
)

const identifierAnalyzer = "identifier"

// Hit is a single name search result.
type Hit struct {
	ID       string
	Name     string
	Score    float64
	Distance int // edit distance between the query and the name, lowercased
}

// NameIndex indexes chunk names, split into words, for exact and fuzzy lookup.
// It is rebuilt from the metadata index on load and is never persisted.
type NameIndex struct {
	index  bleve.Index
	logger *zap.Logger
}

// Option configures a NameIndex.
type Option func(*NameIndex)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(n *NameIndex) { n.logger = l }
}

// NewNameIndex creates an empty in-memory name index.
func NewNameIndex(opts ...Option) (*NameIndex, error) {
	im, err := newMapping()
	if err != nil {
		return nil, err
	}
	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	n := &NameIndex{index: index}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// newMapping indexes the lowercased full name as one token and its split words
// separately. The identifier analyzer lowercases without stemming or stop words,
// so short words like "use" or "get" stay searchable.
func newMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomAnalyzer(identifierAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("failed to register analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()
	nameField := bleve.NewTextFieldMapping()
	nameField.Analyzer = identifierAnalyzer
	docMapping.AddFieldMappingsAt("name", nameField)
	wordsField := bleve.NewTextFieldMapping()
	wordsField.Analyzer = identifierAnalyzer
	wordsField.Store = false
	docMapping.AddFieldMappingsAt("words", wordsField)
	kindField := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("kind", kindField)
	pathField := bleve.NewKeywordFieldMapping()
	pathField.Index = false
	docMapping.AddFieldMappingsAt("path", pathField)

	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im, nil
}

func document(meta models.ChunkMetadata) map[string]interface{} {
	return map[string]interface{}{
		"name":  meta.Name,
		"words": strings.Join(SplitName(meta.Name), " "),
		"kind":  string(meta.Kind),
		"path":  meta.FilePath,
	}
}

// Index adds or replaces the entry for id.
func (n *NameIndex) Index(id string, meta models.ChunkMetadata) error {
	if err := n.index.Index(id, document(meta)); err != nil {
		return fmt.Errorf("index name %s: %w", id, err)
	}
	return nil
}

// IndexBatch adds or replaces every record in one Bleve batch.
func (n *NameIndex) IndexBatch(records []models.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := n.index.NewBatch()
	for _, r := range records {
		if err := batch.Index(r.ID, document(r.Metadata)); err != nil {
			return fmt.Errorf("index name %s: %w", r.ID, err)
		}
	}
	if err := n.index.Batch(batch); err != nil {
		return fmt.Errorf("index name batch: %w", err)
	}
	if n.logger != nil {
		n.logger.Debug("name index batch", zap.Int("records", len(records)))
	}
	return nil
}

// Delete removes id. Deleting an unknown id is not an error.
func (n *NameIndex) Delete(id string) error {
	return n.index.Delete(id)
}

// DeleteBatch removes every id in one Bleve batch.
func (n *NameIndex) DeleteBatch(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := n.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return n.index.Batch(batch)
}

// DocCount returns the number of indexed names.
func (n *NameIndex) DocCount() (uint64, error) {
	return n.index.DocCount()
}

// Search returns up to limit chunks whose name matches query. Without fuzzy, a hit
// must contain one of the query's words exactly (or the whole name). With fuzzy,
// each word may be up to two edits away. Hits are ordered by score, then by edit
// distance to the query, then by id.
func (n *NameIndex) Search(query string, limit int, fuzzy bool) ([]Hit, error) {
	words := SplitName(query)
	if len(words) == 0 || limit <= 0 {
		return []Hit{}, nil
	}
	whole := strings.ToLower(strings.Join(words, ""))

	var q blevequery.Query
	if fuzzy {
		q = bleve.NewDisjunctionQuery(
			buildFuzzyQuery(words, "words"),
			buildFuzzyQuery([]string{whole}, "name"),
		)
	} else {
		wq := bleve.NewMatchQuery(strings.Join(words, " "))
		wq.SetField("words")
		nq := bleve.NewTermQuery(whole)
		nq.SetField("name")
		q = bleve.NewDisjunctionQuery(wq, nq)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit * 2
	req.Fields = []string{"name"}
	results, err := n.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	hits := make([]Hit, 0, len(results.Hits))
	for _, h := range results.Hits {
		name, _ := h.Fields["name"].(string)
		hits = append(hits, Hit{
			ID:       h.ID,
			Name:     name,
			Score:    h.Score,
			Distance: editDistance(whole, strings.ToLower(name)),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	if n.logger != nil {
		n.logger.Debug("name search", zap.String("query", query), zap.Bool("fuzzy", fuzzy), zap.Int("hits", len(hits)))
	}
	return hits, nil
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries, one per term, on field.
// Short terms get a smaller edit budget so "use" does not match every three-letter word.
func buildFuzzyQuery(terms []string, field string) blevequery.Query {
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		f := fuzzinessFor(term)
		if f == 0 {
			tq := bleve.NewTermQuery(term)
			tq.SetField(field)
			queries = append(queries, tq)
			continue
		}
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(f)
		fq.SetField(field)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

func fuzzinessFor(term string) int {
	switch n := len([]rune(term)); {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

// Close closes the Bleve index.
func (n *NameIndex) Close() error {
	return n.index.Close()
}
