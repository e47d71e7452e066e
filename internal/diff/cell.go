package diff

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Mode selects how a preview cell is rendered.
type Mode int

const (
	// ModePlain shows the transformed value and highlights changed cells.
	ModePlain Mode = iota
	// ModeCompare shows the transformed value, highlights the same way and
	// exposes the original value for a tooltip.
	ModeCompare
)

// ParseMode maps a query value to a Mode. Anything unrecognized is plain.
func ParseMode(s string) Mode {
	if s == "compare" {
		return ModeCompare
	}
	return ModePlain
}

func (m Mode) String() string {
	if m == ModeCompare {
		return "compare"
	}
	return "plain"
}

// Cell is everything a renderer needs for one table cell.
type Cell struct {
	Column      string `json:"column"`
	Value       any    `json:"value"`
	Text        string `json:"text"`
	Highlighted bool   `json:"highlighted"`
	Original    string `json:"original,omitempty"`
	HasOriginal bool   `json:"has_original,omitempty"`
}

// CellView renders one cell. Both modes share IsHighlighted and the value
// accessor; compare mode additionally looks the row up in originals (see
// IndexByOrig) when the cell is highlighted. originals may be nil.
func CellView(row Row, col string, marks Marks, mode Mode, filter ColumnFilter, originals map[int]Row) Cell {
	v := row[col]
	c := Cell{
		Column:      col,
		Value:       v,
		Text:        FormatValue(v),
		Highlighted: IsHighlighted(row, col, marks, filter),
	}
	if mode != ModeCompare || !c.Highlighted || originals == nil {
		return c
	}
	idx, _ := OrigIndex(row)
	if orig, ok := originals[idx]; ok {
		if ov, ok := orig[col]; ok {
			c.Original = FormatValue(ov)
			c.HasOriginal = true
		}
	}
	return c
}

// FormatValue stringifies a cell for display and for substring filtering.
// nil renders as an empty string; composite values render as JSON.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case []any, map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}
