package gworkspace

import (
	"context"
	"sort"
	"strings"

	docs "google.golang.org/api/docs/v1"

	"github.com/noah-isme/lesson-reflection-api/pkg/doctemplate"
)

// RangePrefix namespaces the named ranges that hold field values.
const RangePrefix = "reflection."

// RangeName returns the named range holding a field.
func RangeName(field string) string {
	return RangePrefix + field
}

// BuildRequests turns rendered blocks into Docs requests inserting them at start.
// Every placeholder span becomes a named range so the value can be replaced later.
func BuildRequests(blocks []doctemplate.Block, start int64) []*docs.Request {
	requests := make([]*docs.Request, 0, len(blocks)*2)
	index := start
	for _, block := range blocks {
		text := block.Text + "\n"
		if block.Kind == doctemplate.KindEmpty {
			text = "\n"
		}
		requests = append(requests, &docs.Request{
			InsertText: &docs.InsertTextRequest{Location: &docs.Location{Index: index}, Text: text},
		})
		end := index + int64(doctemplate.UTF16Len(text))
		paragraph := &docs.Range{StartIndex: index, EndIndex: end}

		switch block.Kind {
		case doctemplate.KindHeading1, doctemplate.KindHeading2, doctemplate.KindHeading3:
			requests = append(requests, &docs.Request{
				UpdateParagraphStyle: &docs.UpdateParagraphStyleRequest{
					Range:          paragraph,
					ParagraphStyle: &docs.ParagraphStyle{NamedStyleType: namedStyle(block.Kind)},
					Fields:         "namedStyleType",
				},
			})
		case doctemplate.KindBullet:
			requests = append(requests, &docs.Request{
				CreateParagraphBullets: &docs.CreateParagraphBulletsRequest{Range: paragraph, BulletPreset: "BULLET_DISC_CIRCLE_SQUARE"},
			})
		case doctemplate.KindNumbered:
			requests = append(requests, &docs.Request{
				CreateParagraphBullets: &docs.CreateParagraphBulletsRequest{Range: paragraph, BulletPreset: "NUMBERED_DECIMAL_ALPHA_ROMAN"},
			})
		}

		for _, span := range block.Spans {
			if span.End <= span.Start {
				continue
			}
			requests = append(requests, &docs.Request{
				CreateNamedRange: &docs.CreateNamedRangeRequest{
					Name:  RangeName(span.Field),
					Range: &docs.Range{StartIndex: index + int64(span.Start), EndIndex: index + int64(span.End)},
				},
			})
		}
		index = end
	}
	return requests
}

func namedStyle(kind doctemplate.Kind) string {
	switch kind {
	case doctemplate.KindHeading1:
		return "HEADING_1"
	case doctemplate.KindHeading2:
		return "HEADING_2"
	default:
		return "HEADING_3"
	}
}

// WriteBlocks writes blocks into a document. With replace set, existing body content
// and field ranges are removed first so a retried write does not duplicate text.
func (c *Client) WriteBlocks(ctx context.Context, documentID string, blocks []doctemplate.Block, replace bool) error {
	var requests []*docs.Request
	if replace {
		doc, err := c.getDocument(ctx, documentID)
		if err != nil {
			return err
		}
		requests = append(requests, clearRequests(doc)...)
	}
	requests = append(requests, BuildRequests(blocks, 1)...)
	return c.batchUpdate(ctx, documentID, requests)
}

// AppendBlocks writes blocks after the existing content of a document.
func (c *Client) AppendBlocks(ctx context.Context, documentID string, blocks []doctemplate.Block) error {
	doc, err := c.getDocument(ctx, documentID)
	if err != nil {
		return err
	}
	return c.batchUpdate(ctx, documentID, BuildRequests(blocks, bodyEnd(doc)-1))
}

// ReplaceFields overwrites the named range of every field present in the document.
// It returns the fields that have no range and were therefore left untouched.
func (c *Client) ReplaceFields(ctx context.Context, documentID string, values map[string]string) ([]string, error) {
	doc, err := c.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(values))
	for field := range values {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var missing []string
	var requests []*docs.Request
	for _, field := range fields {
		name := RangeName(field)
		if _, ok := doc.NamedRanges[name]; !ok {
			missing = append(missing, field)
			continue
		}
		requests = append(requests, &docs.Request{
			ReplaceNamedRangeContent: &docs.ReplaceNamedRangeContentRequest{NamedRangeName: name, Text: values[field]},
		})
	}
	if len(requests) == 0 {
		return missing, nil
	}
	if err := c.batchUpdate(ctx, documentID, requests); err != nil {
		return nil, err
	}
	return missing, nil
}

// HasFieldRanges reports whether the document carries any field ranges.
func (c *Client) HasFieldRanges(ctx context.Context, documentID string) (bool, error) {
	doc, err := c.getDocument(ctx, documentID)
	if err != nil {
		return false, err
	}
	for name := range doc.NamedRanges {
		if strings.HasPrefix(name, RangePrefix) {
			return true, nil
		}
	}
	return false, nil
}

func clearRequests(doc *docs.Document) []*docs.Request {
	var requests []*docs.Request
	names := make([]string, 0, len(doc.NamedRanges))
	for name := range doc.NamedRanges {
		if strings.HasPrefix(name, RangePrefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		requests = append(requests, &docs.Request{DeleteNamedRange: &docs.DeleteNamedRangeRequest{Name: name}})
	}
	if end := bodyEnd(doc) - 1; end > 1 {
		requests = append(requests, &docs.Request{
			DeleteContentRange: &docs.DeleteContentRangeRequest{Range: &docs.Range{StartIndex: 1, EndIndex: end}},
		})
	}
	return requests
}

func bodyEnd(doc *docs.Document) int64 {
	if doc == nil || doc.Body == nil || len(doc.Body.Content) == 0 {
		return 2
	}
	end := doc.Body.Content[len(doc.Body.Content)-1].EndIndex
	if end < 2 {
		return 2
	}
	return end
}

func (c *Client) getDocument(ctx context.Context, documentID string) (*docs.Document, error) {
	var doc *docs.Document
	err := c.call(ctx, "docs.get", func(ctx context.Context) error {
		var err error
		doc, err = c.docs.Documents.Get(documentID).Context(ctx).Do()
		return err
	})
	return doc, err
}

func (c *Client) batchUpdate(ctx context.Context, documentID string, requests []*docs.Request) error {
	if len(requests) == 0 {
		return nil
	}
	return c.call(ctx, "docs.batch_update", func(ctx context.Context) error {
		_, err := c.docs.Documents.BatchUpdate(documentID, &docs.BatchUpdateDocumentRequest{Requests: requests}).
			Context(ctx).
			Do()
		return err
	})
}
