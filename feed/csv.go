package feed

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/aluiziolira/go-stock-sync/models"
)

// CSVOptions configures the CSV feed reader.
type CSVOptions struct {
	// Delimiter separates cells; zero sniffs ',' or ';' from the header line.
	Delimiter rune
}

// StreamCSV reads a headed CSV feed and sends one record per data row.
// Headers are resolved through Columns; blank rows are skipped.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan *models.FeedRecord, <-chan error) {
	outCh := make(chan *models.FeedRecord, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		br := bufio.NewReader(r)
		delim := opts.Delimiter
		if delim == 0 {
			delim = sniffDelimiter(br)
		}

		reader := csv.NewReader(br)
		reader.Comma = delim
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		var index *headerIndex
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			row, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if index == nil {
				index = newHeaderIndex(row)
				continue
			}
			rec := index.record(row)
			if rec == nil {
				continue
			}
			if err := send(ctx, outCh, rec); err != nil {
				errCh <- eris.Wrap(err, "csv: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}

func sniffDelimiter(br *bufio.Reader) rune {
	line, _ := br.Peek(4096)
	first := string(line)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	if strings.Count(first, ";") > strings.Count(first, ",") {
		return ';'
	}
	return ','
}
