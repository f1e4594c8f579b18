// Package models defines data structures shared across the sync pipeline.
package models

import "strings"

// Field is a canonical feed attribute name.
type Field string

// Canonical fields the pipeline interprets. Any other scalar element is
// carried as a passthrough attribute.
const (
	FieldMark              Field = "mark_id"
	FieldModel             Field = "folder_id"
	FieldModification      Field = "modification_id"
	FieldComplectation     Field = "complectation_name"
	FieldColor             Field = "color"
	FieldYear              Field = "year"
	FieldVIN               Field = "vin"
	FieldPrice             Field = "price"
	FieldPriceWithDiscount Field = "priceWithDiscount"
	FieldMileage           Field = "run"
	FieldTotal             Field = "total"
	FieldDescription       Field = "description"
	FieldExtras            Field = "extras"
	FieldImages            Field = "images"
)

// Attr is one present attribute of a feed record.
type Attr struct {
	Name  Field
	Value string
}

// FeedRecord is one flat vehicle entry from the inventory feed.
// Attributes keep feed order; absent and blank values are never stored.
type FeedRecord struct {
	Attrs  []Attr
	Images []string
}

// NewFeedRecord returns an empty record.
func NewFeedRecord() *FeedRecord {
	return &FeedRecord{}
}

// Set stores value for name, replacing an earlier value in place.
// Blank values remove the attribute.
func (r *FeedRecord) Set(name Field, value string) {
	value = strings.TrimSpace(value)
	for i := range r.Attrs {
		if r.Attrs[i].Name != name {
			continue
		}
		if value == "" {
			r.Attrs = append(r.Attrs[:i], r.Attrs[i+1:]...)
			return
		}
		r.Attrs[i].Value = value
		return
	}
	if value == "" {
		return
	}
	r.Attrs = append(r.Attrs, Attr{Name: name, Value: value})
}

// Get returns the value of name and whether it is present.
func (r *FeedRecord) Get(name Field) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, a := range r.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Value returns the value of name or an empty string.
func (r *FeedRecord) Value(name Field) string {
	v, _ := r.Get(name)
	return v
}

// AddImage appends a non-blank image URL.
func (r *FeedRecord) AddImage(url string) {
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}
	r.Images = append(r.Images, url)
}

// Status is the terminal state of one upsert.
type Status string

const (
	StatusCreated  Status = "created"
	StatusMerged   Status = "merged"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

// Outcome describes what an upsert did to a content record.
type Outcome struct {
	Key    string `csv:"key" json:"key"`
	VIN    string `csv:"vin" json:"vin,omitempty"`
	Status Status `csv:"status" json:"status"`
	Reason string `csv:"reason" json:"reason,omitempty"`
}

// MissingMapping is a vehicle whose model had no cover image mapping.
type MissingMapping struct {
	VIN   string `json:"vin"`
	Model string `json:"model"`
}

// RunResult summarises one pass over the feed.
type RunResult struct {
	RunID       string
	Records     int
	Created     int
	Merged      int
	Rejected    int
	Failed      int
	Generated   int
	CacheHits   int
	ThumbErrors int
	Swept       int
	Kept        int
	SweepErrors int
	SweepSkip   bool
	Missing     []MissingMapping
}
