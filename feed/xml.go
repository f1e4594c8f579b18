package feed

import (
	"context"
	"io"

	"github.com/antchfx/xmlquery"
	"github.com/rotisserie/eris"

	"github.com/aluiziolira/go-stock-sync/models"
)

// RecordXPath selects vehicle elements in an XML feed.
const RecordXPath = "//cars/car"

// StreamXML streams //cars/car elements. Scalar children become attributes in
// document order, images/image children become image URLs and any other
// element with element children is skipped.
func StreamXML(ctx context.Context, r io.Reader) (<-chan *models.FeedRecord, <-chan error) {
	outCh := make(chan *models.FeedRecord, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		sp, err := xmlquery.CreateStreamParser(r, RecordXPath)
		if err != nil {
			errCh <- eris.Wrap(err, "xml: create parser")
			return
		}

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}

			node, err := sp.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "xml: read element")
				return
			}

			if err := send(ctx, outCh, carRecord(node)); err != nil {
				errCh <- eris.Wrap(err, "xml: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}

func carRecord(car *xmlquery.Node) *models.FeedRecord {
	rec := models.NewFeedRecord()
	for child := car.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode {
			continue
		}
		if child.Data == string(models.FieldImages) {
			for _, img := range xmlquery.Find(child, "image") {
				rec.AddImage(img.InnerText())
			}
			continue
		}
		if hasElementChildren(child) {
			continue
		}
		rec.Set(models.Field(child.Data), child.InnerText())
	}
	return rec
}

func hasElementChildren(n *xmlquery.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return true
		}
	}
	return false
}
