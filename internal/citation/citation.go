// Package citation turns the loosely shaped source attributions a backend
// returns into the fixed Citation model attached to assistant turns.
package citation

import (
	"fmt"
	"strings"

	"studio/internal/domain"
)

// Raw is a server citation before normalization. Nil fields were absent.
type Raw struct {
	Index    *int
	SourceID string
	Snippet  *string
}

// Normalize keeps server order and guarantees every citation a unique
// positive index. Explicit indices survive (first occurrence wins); the rest
// get the smallest unused index in array order, so a list without indices
// becomes 1..K.
func Normalize(raw []Raw) []domain.Citation {
	if len(raw) == 0 {
		return []domain.Citation{}
	}
	out := make([]domain.Citation, len(raw))
	used := make(map[int]struct{}, len(raw))
	assigned := make([]bool, len(raw))

	for i, r := range raw {
		out[i].SourceID = r.SourceID
		if r.Snippet != nil {
			out[i].Snippet = *r.Snippet
		}
		if r.Index == nil || *r.Index <= 0 {
			continue
		}
		if _, dup := used[*r.Index]; dup {
			continue
		}
		used[*r.Index] = struct{}{}
		out[i].Index = *r.Index
		assigned[i] = true
	}

	next := 1
	for i := range out {
		if assigned[i] {
			continue
		}
		for {
			if _, taken := used[next]; !taken {
				break
			}
			next++
		}
		out[i].Index = next
		used[next] = struct{}{}
	}
	return out
}

// Lines renders citations in stored order, one "[n] source" line followed by
// an indented snippet line when the snippet is non-empty.
func Lines(cs []domain.Citation) []string {
	lines := make([]string, 0, 2*len(cs))
	for _, c := range cs {
		lines = append(lines, fmt.Sprintf("[%d] %s", c.Index, c.SourceID))
		if s := strings.TrimSpace(c.Snippet); s != "" {
			lines = append(lines, "    "+s)
		}
	}
	return lines
}
