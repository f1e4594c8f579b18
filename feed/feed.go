// Package feed reads vehicle inventory feeds into flat records.
package feed

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/aluiziolira/go-stock-sync/fetcher"
	"github.com/aluiziolira/go-stock-sync/models"
)

// Format names a feed encoding.
type Format string

const (
	FormatAuto Format = "auto"
	FormatXML  Format = "xml"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name. Empty selects FormatAuto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatXML, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", eris.Errorf("feed: unknown format %q", s)
	}
}

// DetectFormat picks a format from the extension of source, falling back to XML.
func DetectFormat(source string) Format {
	p := source
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && u.Host != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".csv":
		return FormatCSV
	case ".xlsx":
		return FormatXLSX
	default:
		return FormatXML
	}
}

// IsRemote reports whether source is an http(s) URL.
func IsRemote(source string) bool {
	u, err := url.Parse(source)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Load returns the raw feed bytes from a local path or an http(s) URL.
func Load(ctx context.Context, source string, f fetcher.Fetcher) ([]byte, error) {
	if source == "" {
		return nil, eris.New("feed: no source")
	}
	if IsRemote(source) {
		if f == nil {
			return nil, eris.Errorf("feed: no fetcher for %s", source)
		}
		data, err := f.Fetch(ctx, source)
		if err != nil {
			return nil, eris.Wrapf(err, "feed: download %s", source)
		}
		return data, nil
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: read %s", source)
	}
	return data, nil
}

// Stream decodes data in the given format and sends records on the first
// channel. At most one error is sent. Both channels are closed when
// decoding stops.
func Stream(ctx context.Context, data []byte, format Format) (<-chan *models.FeedRecord, <-chan error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	switch format {
	case FormatCSV:
		return StreamCSV(ctx, bytes.NewReader(data), CSVOptions{})
	case FormatXLSX:
		return StreamXLSX(ctx, data, XLSXOptions{})
	default:
		return StreamXML(ctx, bytes.NewReader(data))
	}
}

// Open loads source and streams its records. FormatAuto picks the format
// from the source extension.
func Open(ctx context.Context, source string, format Format, f fetcher.Fetcher) (<-chan *models.FeedRecord, <-chan error, error) {
	if format == "" || format == FormatAuto {
		format = DetectFormat(source)
	}
	data, err := Load(ctx, source, f)
	if err != nil {
		return nil, nil, err
	}
	recs, errs := Stream(ctx, data, format)
	return recs, errs, nil
}

func send(ctx context.Context, out chan<- *models.FeedRecord, rec *models.FeedRecord) error {
	select {
	case out <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
