package cursor

import (
	"strings"
	"time"
)

// Separator cannot appear in an RFC3339 timestamp or a UUID.
const Separator = "|"

type Cursor struct {
	Timestamp time.Time
	Id        string
}

// Row is anything ordered by the (timestamp, id) tuple.
type Row interface {
	CursorKey() (time.Time, string)
}

// Build encodes ts and id. The timestamp is normalized to UTC so that two
// cursors for the same instant are byte-identical.
func Build(ts time.Time, id string) string {
	return ts.UTC().Format(time.RFC3339Nano) + Separator + id
}

// FromRow builds the cursor pointing at row.
func FromRow(row Row) string {
	ts, id := row.CursorKey()
	return Build(ts, id)
}

// Parse returns nil for empty input, a wrong separator count, an empty
// component or an unparsable timestamp.
func Parse(raw string) *Cursor {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, Separator)
	if len(parts) != 2 {
		return nil
	}
	tsPart, idPart := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if tsPart == "" || idPart == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, tsPart)
	if err != nil {
		return nil
	}
	return &Cursor{Timestamp: ts, Id: idPart}
}

// IsAfter reports whether (ts, id) sorts strictly after c. The id comparison
// breaks ties between rows stored at the same instant.
func (c *Cursor) IsAfter(ts time.Time, id string) bool {
	if c == nil {
		return true
	}
	if ts.After(c.Timestamp) {
		return true
	}
	return ts.Equal(c.Timestamp) && id > c.Id
}

// FilterAfter keeps the rows strictly after c, preserving order. A nil cursor
// returns rows unchanged.
func FilterAfter[T Row](rows []T, c *Cursor) []T {
	if c == nil {
		return rows
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		ts, id := row.CursorKey()
		if c.IsAfter(ts, id) {
			out = append(out, row)
		}
	}
	return out
}

// Page is one slice of an ordered stream plus the cursor to resume from.
type Page[T Row] struct {
	Items      []T
	NextCursor string
	HasMore    bool
}

// Paginate filters rows after c and cuts the result at limit. rows must be
// sorted by (timestamp, id) ascending.
func Paginate[T Row](rows []T, c *Cursor, limit int) Page[T] {
	after := FilterAfter(rows, c)
	page := Page[T]{Items: after}
	if limit > 0 && len(after) > limit {
		page.Items = after[:limit]
		page.HasMore = true
	}
	if len(page.Items) > 0 {
		page.NextCursor = FromRow(page.Items[len(page.Items)-1])
	}
	return page
}
