package web

// handlers_common.go contains request parsing helpers shared across handlers.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/prepflow/internal/diff"
	"github.com/JonMunkholm/prepflow/internal/job"
)

// MaxBodySize bounds JSON and recipe request bodies (1MB).
const MaxBodySize = 1 << 20

// fieldBody tags validation errors about the request body itself.
const fieldBody = "body"

// parseIntParam parses a positive integer query parameter. ok is false
// when the parameter is absent or not a positive integer.
func parseIntParam(r *http.Request, name string) (int, bool) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return 0, false
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return 0, false
	}
	return i, true
}

// parseFilters extracts column filters from filter[<column>]=<text> query
// parameters. An empty text clears that column's filter.
func parseFilters(r *http.Request) map[string]string {
	var filters map[string]string
	for key, values := range r.URL.Query() {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		col := key[7 : len(key)-1]
		if col == "" || len(values) == 0 {
			continue
		}
		if filters == nil {
			filters = make(map[string]string)
		}
		filters[col] = values[len(values)-1]
	}
	return filters
}

// parseHighlight reads the comma-separated highlight column filter.
func parseHighlight(r *http.Request) []string {
	raw := r.URL.Query().Get("highlight")
	if raw == "" {
		return nil
	}
	var cols []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

// parseMode reads the table rendering mode.
func parseMode(r *http.Request) diff.Mode {
	return diff.ParseMode(r.URL.Query().Get("mode"))
}

// decodeJSON decodes a size-limited JSON body into v. Malformed bodies are
// reported as validation errors so they map to a 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &job.ValidationError{Field: fieldBody, Message: "request body is empty"}
		}
		return &job.ValidationError{Field: fieldBody, Message: fmt.Sprintf("invalid JSON body: %v", err)}
	}
	return nil
}
