// Package categorization assigns categories to imported transactions by
// matching keyword patterns against the transaction description. The
// matcher runs one Aho-Corasick pass per description, so matching cost is
// independent of how many patterns a user has.
package categorization

import (
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
	"github.com/google/uuid"
)

// Pattern is one user-defined keyword to category mapping.
type Pattern struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Keyword    string
	CategoryID uuid.UUID
	// Priority breaks ties when several keywords hit the same description.
	Priority int
}

// Match is the winning pattern for a description.
type Match struct {
	PatternID  uuid.UUID
	Keyword    string
	CategoryID uuid.UUID
	Priority   int
}

// Engine matches descriptions against a pattern set. Rebuilding is guarded
// so the import pipeline can keep matching while patterns change.
type Engine struct {
	mu       sync.RWMutex
	matcher  *ahocorasick.Matcher
	keywords []string
	// grouped holds every pattern sharing a keyword, since two users' sets
	// are built separately but one user may repeat a keyword.
	grouped [][]Match
}

// NewEngine builds an engine over the given patterns.
func NewEngine(patterns []Pattern) *Engine {
	e := &Engine{}
	e.Build(patterns)
	return e
}

// Build replaces the pattern set.
func (e *Engine) Build(patterns []Pattern) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(patterns) == 0 {
		e.matcher = nil
		e.keywords = nil
		e.grouped = nil
		return
	}

	index := make(map[string]int)
	keywords := make([]string, 0, len(patterns))
	grouped := make([][]Match, 0, len(patterns))

	for _, p := range patterns {
		keyword := strings.ToUpper(strings.TrimSpace(p.Keyword))
		if keyword == "" {
			continue
		}
		m := Match{
			PatternID:  p.ID,
			Keyword:    p.Keyword,
			CategoryID: p.CategoryID,
			Priority:   p.Priority,
		}
		if idx, ok := index[keyword]; ok {
			grouped[idx] = append(grouped[idx], m)
			continue
		}
		index[keyword] = len(keywords)
		keywords = append(keywords, keyword)
		grouped = append(grouped, []Match{m})
	}

	e.keywords = keywords
	e.grouped = grouped
	if len(keywords) == 0 {
		e.matcher = nil
		return
	}

	byteKeywords := make([][]byte, len(keywords))
	for i, k := range keywords {
		byteKeywords[i] = []byte(k)
	}
	e.matcher = ahocorasick.NewMatcher(byteKeywords)
}

// Match returns the highest-priority pattern whose keyword occurs in the
// description, or nil when nothing matches. Ties on priority go to the
// longer keyword, the more specific one.
func (e *Engine) Match(description string) *Match {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.matcher == nil {
		return nil
	}

	hits := e.matcher.Match([]byte(strings.ToUpper(description)))
	if len(hits) == 0 {
		return nil
	}

	var best *Match
	var bestKeyword string
	for _, idx := range hits {
		if idx < 0 || idx >= len(e.grouped) {
			continue
		}
		keyword := e.keywords[idx]
		for i := range e.grouped[idx] {
			m := &e.grouped[idx][i]
			if best == nil ||
				m.Priority > best.Priority ||
				(m.Priority == best.Priority && len(keyword) > len(bestKeyword)) {
				copied := *m
				best = &copied
				bestKeyword = keyword
			}
		}
	}
	return best
}

// MatchBatch matches many descriptions under one read lock. The result
// slice is parallel to descriptions; unmatched entries are nil.
func (e *Engine) MatchBatch(descriptions []string) []*Match {
	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]*Match, len(descriptions))
	if e.matcher == nil {
		return results
	}

	for i, desc := range descriptions {
		hits := e.matcher.Match([]byte(strings.ToUpper(desc)))
		var best *Match
		var bestKeyword string
		for _, idx := range hits {
			if idx < 0 || idx >= len(e.grouped) {
				continue
			}
			keyword := e.keywords[idx]
			for j := range e.grouped[idx] {
				m := &e.grouped[idx][j]
				if best == nil ||
					m.Priority > best.Priority ||
					(m.Priority == best.Priority && len(keyword) > len(bestKeyword)) {
					copied := *m
					best = &copied
					bestKeyword = keyword
				}
			}
		}
		results[i] = best
	}
	return results
}

// PatternCount returns the number of distinct keywords loaded.
func (e *Engine) PatternCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.keywords)
}

// IsEmpty reports whether the engine has no patterns.
func (e *Engine) IsEmpty() bool {
	return e.PatternCount() == 0
}
