package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/JonMunkholm/prepflow/internal/recommend"
)

// DatasetPreview describes a dataset before any transformation.
type DatasetPreview struct {
	Filename     string            `json:"filename,omitempty"`
	Columns      []string          `json:"columns"`
	Dtypes       map[string]string `json:"dtypes"`
	NullCounts   map[string]int    `json:"null_counts"`
	SampleValues map[string]any    `json:"sample_values"`
	TotalRows    int               `json:"total_rows"`
}

// ColumnInfo returns the per-column metadata in dataset order, ready for the
// recommendation engine.
func (p *DatasetPreview) ColumnInfo() []recommend.Column {
	cols := make([]recommend.Column, len(p.Columns))
	for i, name := range p.Columns {
		cols[i] = recommend.Column{
			Name:        name,
			Dtype:       p.Dtypes[name],
			SampleValue: p.SampleValues[name],
			NullCount:   p.NullCounts[name],
		}
	}
	return cols
}

// TotalNulls sums null counts across all columns.
func (p *DatasetPreview) TotalNulls() int {
	n := 0
	for _, c := range p.NullCounts {
		n += c
	}
	return n
}

// Preview loads the preview of a dataset by file name.
func (c *Client) Preview(ctx context.Context, filename string) (*DatasetPreview, error) {
	name := strings.TrimSpace(filename)
	var out DatasetPreview
	if err := c.do(ctx, "load preview", http.MethodGet, "/preview/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	if out.Filename == "" {
		out.Filename = name
	}
	return &out, nil
}
