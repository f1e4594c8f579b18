// Package content encodes and stores the per-vehicle content records consumed
// by the static site.
package content

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/aluiziolira/go-stock-sync/models"
)

// Delimiter opens and closes the metadata block of a record file.
const Delimiter = "---"

// ErrMalformedRecord is returned when a persisted record has no delimited
// metadata block or the block is not a YAML mapping.
var ErrMalformedRecord = eris.New("content: malformed record")

// Metadata keys with fixed meaning. Anything else is a passthrough extra.
const (
	KeyTotal             = "total"
	KeyVINHidden         = "vin_hidden"
	KeyH1                = "h1"
	KeyBreadcrumb        = "breadcrumb"
	KeyTitle             = "title"
	KeyColor             = "color"
	KeyImage             = "image"
	KeyImages            = "images"
	KeyThumbs            = "thumbs"
	KeyDescription       = "description"
	KeyMileage           = "run"
	KeyPriceWithDiscount = "priceWithDiscount"
)

var reserved = map[string]bool{
	KeyTotal: true, KeyVINHidden: true, KeyH1: true, KeyBreadcrumb: true,
	KeyTitle: true, KeyColor: true, KeyImage: true, KeyImages: true,
	KeyThumbs: true, KeyDescription: true, KeyMileage: true, KeyPriceWithDiscount: true,
}

// Record is one persisted vehicle page.
type Record struct {
	Key               string
	Total             int
	VINHidden         string
	H1                string
	Breadcrumb        string
	Title             string
	Color             string
	Image             string
	Images            []string
	Thumbs            []string
	Description       string
	Mileage           *int
	PriceWithDiscount *int
	// Extras are passthrough attributes in first-seen order.
	Extras []models.Attr
	Body   string
}

// Extra returns the passthrough value of name.
func (r *Record) Extra(name models.Field) (string, bool) {
	for _, a := range r.Extras {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Render serialises rec as a metadata block followed by the body.
// Key order is fixed, extras follow in their stored order.
func Render(rec *Record) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	put := func(key string, value *yaml.Node) {
		doc.Content = append(doc.Content, strNode(key), value)
	}

	put(KeyTotal, intNode(rec.Total))
	put(KeyVINHidden, strNode(rec.VINHidden))
	put(KeyH1, strNode(rec.H1))
	put(KeyBreadcrumb, strNode(rec.Breadcrumb))
	put(KeyTitle, strNode(rec.Title))
	put(KeyColor, strNode(rec.Color))
	put(KeyImage, strNode(rec.Image))
	put(KeyImages, seqNode(rec.Images))
	put(KeyThumbs, seqNode(rec.Thumbs))
	if rec.Description != "" {
		put(KeyDescription, strNode(rec.Description))
	}
	if rec.Mileage != nil {
		put(KeyMileage, intNode(*rec.Mileage))
	}
	if rec.PriceWithDiscount != nil {
		put(KeyPriceWithDiscount, intNode(*rec.PriceWithDiscount))
	}
	for _, a := range rec.Extras {
		if reserved[string(a.Name)] {
			continue
		}
		put(string(a.Name), plainNode(a.Value))
	}

	var buf bytes.Buffer
	buf.WriteString(Delimiter + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, eris.Wrapf(err, "content: encode %s", rec.Key)
	}
	if err := enc.Close(); err != nil {
		return nil, eris.Wrapf(err, "content: encode %s", rec.Key)
	}
	buf.WriteString(Delimiter + "\n")
	if rec.Body != "" {
		buf.WriteString(rec.Body)
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// Parse reads a record produced by Render. The key is left empty.
func Parse(data []byte) (*Record, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimPrefix(text, "\ufeff")

	rest, ok := strings.CutPrefix(text, Delimiter+"\n")
	if !ok {
		return nil, eris.Wrap(ErrMalformedRecord, "missing opening delimiter")
	}
	var front, body string
	if idx := strings.Index(rest, "\n"+Delimiter+"\n"); idx >= 0 {
		front, body = rest[:idx+1], rest[idx+len(Delimiter)+2:]
	} else if strings.HasSuffix(rest, "\n"+Delimiter) {
		front = strings.TrimSuffix(rest, Delimiter)
	} else {
		return nil, eris.Wrap(ErrMalformedRecord, "missing closing delimiter")
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(front), &doc); err != nil {
		return nil, eris.Wrapf(ErrMalformedRecord, "metadata: %v", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, eris.Wrap(ErrMalformedRecord, "metadata is not a mapping")
	}

	rec := &Record{Body: strings.TrimSuffix(body, "\n")}
	m := doc.Content[0]
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i].Value, m.Content[i+1]
		switch key {
		case KeyTotal:
			n, err := strconv.Atoi(val.Value)
			if err != nil {
				return nil, eris.Wrapf(ErrMalformedRecord, "%s %q is not a number", key, val.Value)
			}
			rec.Total = n
		case KeyVINHidden:
			rec.VINHidden = val.Value
		case KeyH1:
			rec.H1 = val.Value
		case KeyBreadcrumb:
			rec.Breadcrumb = val.Value
		case KeyTitle:
			rec.Title = val.Value
		case KeyColor:
			rec.Color = val.Value
		case KeyImage:
			rec.Image = val.Value
		case KeyImages:
			rec.Images = seqValues(val)
		case KeyThumbs:
			rec.Thumbs = seqValues(val)
		case KeyDescription:
			rec.Description = val.Value
		case KeyMileage, KeyPriceWithDiscount:
			n, err := optionalInt(val)
			if err != nil {
				return nil, eris.Wrapf(ErrMalformedRecord, "%s %q is not a number", key, val.Value)
			}
			if key == KeyMileage {
				rec.Mileage = n
			} else {
				rec.PriceWithDiscount = n
			}
		default:
			if val.Kind == yaml.ScalarNode {
				rec.Extras = append(rec.Extras, models.Attr{Name: models.Field(key), Value: val.Value})
			}
		}
	}
	return rec, nil
}

func strNode(v string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
	if strings.Contains(v, "\n") {
		n.Style = yaml.LiteralStyle
	}
	return n
}

// plainNode leaves the tag unset so passthrough values are written as the
// feed spelled them.
func plainNode(v string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Value: v}
	if strings.Contains(v, "\n") {
		n.Style = yaml.LiteralStyle
	}
	return n
}

func intNode(v int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}
}

func seqNode(values []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode}
	if len(values) == 0 {
		n.Style = yaml.FlowStyle
	}
	for _, v := range values {
		n.Content = append(n.Content, strNode(v))
	}
	return n
}

func seqValues(n *yaml.Node) []string {
	if n.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]string, 0, len(n.Content))
	for _, c := range n.Content {
		out = append(out, c.Value)
	}
	return out
}

// optionalInt treats an explicit null as absent.
func optionalInt(n *yaml.Node) (*int, error) {
	if n.Tag == "!!null" {
		return nil, nil
	}
	v, err := strconv.Atoi(n.Value)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
