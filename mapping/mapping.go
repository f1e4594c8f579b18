// Package mapping resolves cover images from the model/colour lookup table.
package mapping

import (
	"io"
	"os"
	"path"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/aluiziolira/go-stock-sync/models"
)

const (
	DefaultFallback = "img/404.jpg"
	DefaultPrefix   = "img/models"
)

// Model is the mapping entry for one model name.
type Model struct {
	Folder string            `yaml:"folder"`
	Colors map[string]string `yaml:"color"`
}

// Table maps feed model names to their image folder and colour files.
type Table struct {
	Models map[string]Model `yaml:"models"`
}

// Load reads a YAML mapping table from path.
func Load(filename string) (*Table, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: open %s", filename)
	}
	defer f.Close() //nolint:errcheck
	return Decode(f)
}

// Decode parses a YAML mapping table.
func Decode(r io.Reader) (*Table, error) {
	var t Table
	if err := yaml.NewDecoder(r).Decode(&t); err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "mapping: decode yaml")
	}
	if t.Models == nil {
		t.Models = make(map[string]Model)
	}
	return &t, nil
}

// Tier identifies where a lookup stopped.
type Tier int

const (
	Hit Tier = iota
	MissModel
	MissColorTable
	MissColor
)

func (t Tier) String() string {
	switch t {
	case Hit:
		return "hit"
	case MissModel:
		return "model"
	case MissColorTable:
		return "color_table"
	case MissColor:
		return "color"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of a cover image lookup.
type Resolution struct {
	Path string
	Tier Tier
}

// Found reports whether the lookup hit the table.
func (r Resolution) Found() bool {
	return r.Tier == Hit
}

// Resolver looks up cover images and degrades to a shared fallback image.
type Resolver struct {
	table    *Table
	prefix   string
	fallback string
}

// NewResolver builds a resolver. Empty prefix and fallback select the defaults.
func NewResolver(table *Table, prefix, fallback string) *Resolver {
	if table == nil {
		table = &Table{Models: make(map[string]Model)}
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if fallback == "" {
		fallback = DefaultFallback
	}
	return &Resolver{table: table, prefix: prefix, fallback: fallback}
}

// Resolve returns the cover image for model in color. Every miss returns the
// fallback path; the tier says which level of the table was absent.
func (r *Resolver) Resolve(model, color string) Resolution {
	entry, ok := r.table.Models[model]
	if !ok {
		return Resolution{Path: r.fallback, Tier: MissModel}
	}
	if len(entry.Colors) == 0 {
		return Resolution{Path: r.fallback, Tier: MissColorTable}
	}
	file, ok := entry.Colors[color]
	if !ok || file == "" || entry.Folder == "" {
		return Resolution{Path: r.fallback, Tier: MissColor}
	}
	return Resolution{Path: path.Join(r.prefix, entry.Folder, "colors", file), Tier: Hit}
}

// Report collects vehicles whose model is missing from the table.
type Report struct {
	mu    sync.Mutex
	pairs map[models.MissingMapping]struct{}
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{pairs: make(map[models.MissingMapping]struct{})}
}

// Add records a (vin, model) pair. Duplicates collapse.
func (r *Report) Add(vin, model string) {
	r.mu.Lock()
	r.pairs[models.MissingMapping{VIN: vin, Model: model}] = struct{}{}
	r.mu.Unlock()
}

// Len returns the number of distinct pairs.
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pairs)
}

// Pairs returns the recorded pairs sorted by model, then VIN.
func (r *Report) Pairs() []models.MissingMapping {
	r.mu.Lock()
	out := make([]models.MissingMapping, 0, len(r.pairs))
	for p := range r.pairs {
		out = append(out, p)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Model != out[j].Model {
			return out[i].Model < out[j].Model
		}
		return out[i].VIN < out[j].VIN
	})
	return out
}
