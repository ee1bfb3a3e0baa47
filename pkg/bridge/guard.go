package bridge

import (
	"shellbridge/pkg/frame"
	"shellbridge/pkg/protocol"
)

// Guard decides which origins may talk to the shell. It is immutable once
// built.
type Guard struct {
	self     string
	wildcard bool
	allowed  map[string]struct{}
}

// NewGuard builds a guard. Entries are reduced to their serialized origin, so
// "https://App.Example/" in configuration matches the "https://app.example"
// a frame reports.
func NewGuard(selfOrigin string, allowed []string) Guard {
	g := Guard{
		self:    normalizeOrigin(selfOrigin),
		allowed: make(map[string]struct{}, len(allowed)),
	}
	for _, origin := range allowed {
		if origin == protocol.Wildcard {
			g.wildcard = true
			continue
		}
		g.allowed[normalizeOrigin(origin)] = struct{}{}
	}
	return g
}

func normalizeOrigin(origin string) string {
	if normalized := frame.OriginOf(origin); normalized != "" {
		return normalized
	}
	return origin
}

// IsAllowed accepts the shell's own origin unconditionally. Any other origin
// needs a wildcard or an exact entry in the allow-list.
func (g Guard) IsAllowed(origin string) bool {
	if origin == g.self {
		return true
	}
	if g.wildcard {
		return true
	}
	_, ok := g.allowed[origin]
	return ok
}
