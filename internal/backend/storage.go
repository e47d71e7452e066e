package backend

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/prepflow/internal/diff"
	"github.com/JonMunkholm/prepflow/internal/table"
)

// SaveRequest is the body of POST /save-to-storage.
type SaveRequest struct {
	DatasetRef string     `json:"datasetRef"`
	JobID      string     `json:"job_id,omitempty"`
	Rows       []diff.Row `json:"rows"`
}

// DownloadRequest is the body of POST /download-csv.
type DownloadRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// SaveToStorage asks the backend to persist rows.
func (c *Client) SaveToStorage(ctx context.Context, req SaveRequest) error {
	return c.do(ctx, "save to storage", http.MethodPost, "/save-to-storage", req, nil)
}

// DownloadCSV hands an encoded CSV to the backend for download.
func (c *Client) DownloadCSV(ctx context.Context, req DownloadRequest) error {
	return c.do(ctx, "download csv", http.MethodPost, "/download-csv", req, nil)
}

// Exporter returns a table.Exporter backed by /download-csv.
func (c *Client) Exporter() table.Exporter {
	return table.ExporterFunc(func(ctx context.Context, filename string, data []byte) error {
		return c.DownloadCSV(ctx, DownloadRequest{Filename: filename, Content: string(data)})
	})
}

// Persister returns a table.Persister backed by /save-to-storage. ref is
// called at save time so it always reflects the current dataset and job.
func (c *Client) Persister(ref func() (datasetRef, jobID string)) table.Persister {
	return table.PersisterFunc(func(ctx context.Context, rows []diff.Row) error {
		dataset, jobID := ref()
		return c.SaveToStorage(ctx, SaveRequest{DatasetRef: dataset, JobID: jobID, Rows: rows})
	})
}
