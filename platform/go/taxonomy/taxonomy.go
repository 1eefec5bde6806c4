// Package taxonomy holds the controlled vocabulary of construction trades and
// coverage regions. Agencies select from it, labor requests are matched against
// it, and free-text values never reach the join tables.
package taxonomy

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed assets/taxonomy.json
var defaultTaxonomyJSON []byte

//go:embed assets/taxonomy.schema.json
var taxonomySchemaJSON []byte

// Entry is one selectable trade or region.
type Entry struct {
	Slug  string `json:"slug"`
	Label string `json:"label"`
}

// Taxonomy is an immutable, validated vocabulary. Safe for concurrent reads.
type Taxonomy struct {
	trades    []Entry
	regions   []Entry
	tradeSet  map[string]struct{}
	regionSet map[string]struct{}
}

type document struct {
	Trades  []Entry `json:"trades"`
	Regions []Entry `json:"regions"`
}

// Load returns the embedded default taxonomy, or the contents of overridePath
// when it is non-empty. Either source is checked against the taxonomy schema
// before use, so a malformed override fails startup instead of polluting listings.
func Load(overridePath string) (*Taxonomy, error) {
	raw := defaultTaxonomyJSON
	if overridePath != "" {
		contents, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("read taxonomy override %s: %w", overridePath, err)
		}
		raw = contents
	}

	return parse(raw)
}

func parse(raw []byte) (*Taxonomy, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("memory://taxonomy.schema.json", bytes.NewReader(taxonomySchemaJSON)); err != nil {
		return nil, fmt.Errorf("register taxonomy schema: %w", err)
	}

	compiled, err := compiler.Compile("memory://taxonomy.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile taxonomy schema: %w", err)
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}
	if err := compiled.Validate(payload); err != nil {
		return nil, fmt.Errorf("taxonomy validation: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode taxonomy: %w", err)
	}

	t := &Taxonomy{
		trades:    doc.Trades,
		regions:   doc.Regions,
		tradeSet:  make(map[string]struct{}, len(doc.Trades)),
		regionSet: make(map[string]struct{}, len(doc.Regions)),
	}
	for _, entry := range doc.Trades {
		if _, dup := t.tradeSet[entry.Slug]; dup {
			return nil, fmt.Errorf("duplicated trade slug %q", entry.Slug)
		}
		t.tradeSet[entry.Slug] = struct{}{}
	}
	for _, entry := range doc.Regions {
		if _, dup := t.regionSet[entry.Slug]; dup {
			return nil, fmt.Errorf("duplicated region slug %q", entry.Slug)
		}
		t.regionSet[entry.Slug] = struct{}{}
	}

	return t, nil
}

// Trades returns all selectable trades in file order.
func (t *Taxonomy) Trades() []Entry { return t.trades }

// Regions returns all selectable regions in file order.
func (t *Taxonomy) Regions() []Entry { return t.regions }

// IsTrade reports whether slug names a known trade.
func (t *Taxonomy) IsTrade(slug string) bool {
	_, ok := t.tradeSet[slug]
	return ok
}

// IsRegion reports whether slug names a known region.
func (t *Taxonomy) IsRegion(slug string) bool {
	_, ok := t.regionSet[slug]
	return ok
}

// InvalidTrades returns the subset of slugs that are not known trades.
func (t *Taxonomy) InvalidTrades(slugs []string) []string {
	var invalid []string
	for _, slug := range slugs {
		if !t.IsTrade(slug) {
			invalid = append(invalid, slug)
		}
	}
	return invalid
}

// InvalidRegions returns the subset of slugs that are not known regions.
func (t *Taxonomy) InvalidRegions(slugs []string) []string {
	var invalid []string
	for _, slug := range slugs {
		if !t.IsRegion(slug) {
			invalid = append(invalid, slug)
		}
	}
	return invalid
}
