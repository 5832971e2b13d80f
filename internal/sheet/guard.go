package sheet

import (
	"context"
	"fmt"
	"strings"
)

// Activity sheet columns used for identity.
const (
	ColDate  = 0
	ColTime  = 1
	ColSport = 2
)

// Guard suppresses duplicate activity rows across runs and within one run.
//
// The vendor activity id, kept in the id column, is the primary identity.
// Rows written before ids were recorded only have the composite
// date_HH:MM_sport key, which still blocks re-insertion of the same session.
// A candidate with an id is a duplicate when the id is known or its composite
// matches an id-less row; a candidate without an id is a duplicate when its
// composite matches any row.
type Guard struct {
	idCol      int
	ids        map[string]struct{}
	legacy     map[string]struct{} // composites of rows without an id
	composites map[string]struct{} // composites of every row
}

// NewGuard indexes existing rows. idCol is the column holding the vendor id,
// or -1 when the sheet has none.
func NewGuard(rows [][]string, idCol int) *Guard {
	g := &Guard{
		idCol:      idCol,
		ids:        make(map[string]struct{}),
		legacy:     make(map[string]struct{}),
		composites: make(map[string]struct{}),
	}
	for _, r := range rows {
		g.remember(r)
	}
	return g
}

// LoadGuard reads the table once and indexes it.
func LoadGuard(ctx context.Context, t Table, idCol int) (*Guard, error) {
	rows, err := t.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.Name(), err)
	}
	return NewGuard(rows, idCol), nil
}

// Composite builds the fallback identity of a session.
func Composite(date, start, sport string) string {
	start = strings.TrimSpace(start)
	if len(start) > 5 {
		start = start[:5]
	}
	return strings.TrimSpace(date) + "_" + start + "_" + strings.TrimSpace(sport)
}

// Seen reports whether row duplicates one already indexed.
func (g *Guard) Seen(row []string) bool {
	key := compositeOf(row)
	if id := g.idOf(row); id != "" {
		_, known := g.ids[id]
		_, legacy := g.legacy[key]
		return known || legacy
	}
	_, ok := g.composites[key]
	return ok
}

// Admit reports whether row is new and, if so, records it so a later
// candidate in the same run collapses into it.
func (g *Guard) Admit(row []string) bool {
	if g.Seen(row) {
		return false
	}
	g.remember(row)
	return true
}

// Len is the number of sessions indexed.
func (g *Guard) Len() int { return len(g.ids) + len(g.legacy) }

func (g *Guard) remember(row []string) {
	if len(row) <= ColSport {
		return
	}
	key := compositeOf(row)
	g.composites[key] = struct{}{}
	if id := g.idOf(row); id != "" {
		g.ids[id] = struct{}{}
		return
	}
	g.legacy[key] = struct{}{}
}

func (g *Guard) idOf(row []string) string {
	if g.idCol < 0 || g.idCol >= len(row) {
		return ""
	}
	id := strings.TrimSpace(row[g.idCol])
	if id == "None" || id == "0" {
		return ""
	}
	return id
}

func compositeOf(row []string) string {
	var date, start, sport string
	if len(row) > ColDate {
		date = row[ColDate]
	}
	if len(row) > ColTime {
		start = row[ColTime]
	}
	if len(row) > ColSport {
		sport = row[ColSport]
	}
	return Composite(date, start, sport)
}
