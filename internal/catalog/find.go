package catalog

import (
	"sort"
	"strings"

	"github.com/dlcy/iptv-hunan/internal/domain"
)

const (
	// Scoring weights
	ScoreExactMatch     = 100.0
	ScorePrefixMatch    = 75.0
	ScoreSubstringMatch = 50.0

	// Position bonus (earlier substring hit is better)
	ScorePositionBonus = 10.0

	// Usage weight (play counter contributes to final score)
	ScoreUsageWeight = 0.1
)

// Match is a channel with its score against a query.
type Match struct {
	Channel domain.Channel `json:"channel"`
	Index   int            `json:"index"`
	Score   float64        `json:"score"`
}

// Find ranks channels by case-insensitive name match: exact, then prefix,
// then substring. Ties keep list order.
func (c *Catalog) Find(query string, limit int) []Match {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	c.mu.RLock()
	var matches []Match
	for i, ch := range c.channels {
		lexical := score(q, strings.ToLower(ch.Name))
		if lexical == 0 {
			continue
		}
		matches = append(matches, Match{
			Channel: ch,
			Index:   i,
			Score:   lexical + float64(c.usage[ch.Name])*ScoreUsageWeight,
		})
	}
	c.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func score(query, name string) float64 {
	switch {
	case name == query:
		return ScoreExactMatch
	case strings.HasPrefix(name, query):
		return ScorePrefixMatch
	}

	pos := strings.Index(name, query)
	if pos < 0 {
		return 0
	}
	// Earlier substring hits score higher, never reaching prefix level.
	nameRunes := len([]rune(name))
	posRunes := len([]rune(name[:pos]))
	return ScoreSubstringMatch + ScorePositionBonus*(1-float64(posRunes)/float64(nameRunes))
}
