package skill

import (
	"context"
	"sort"
	"strings"

	"github.com/connexhq/connex/pkg/utils"
)

// Match pairs a skill with its combined retrieval score.
type Match struct {
	Skill Skill
	Score float64
}

// RetrieveRelevant ranks enabled skills against a query. Vector
// similarity (when an embedder is configured) is combined additively
// with lexical boosts; without a category filter, at most one skill per
// category is returned.
func (r *Registry) RetrieveRelevant(ctx context.Context, query string, limit int, category, subCategory string) ([]Match, error) {
	if limit <= 0 {
		limit = 5
	}

	vectorScores := r.vectorScores(ctx, query, 2*limit)

	queryLower := strings.ToLower(query)
	queryWords := strings.Fields(queryLower)

	var matches []Match
	for _, name := range r.Names() {
		s, ok := r.Get(name)
		if !ok || !skillEnabled(s) {
			continue
		}
		info := s.Info()

		score := vectorScores[name]
		score += lexicalBoost(info, queryLower, queryWords, category, subCategory)
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{Skill: s, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	// Targeted retrieval (caller named a category) wants the best
	// overall; open retrieval diversifies to one skill per category.
	if category == "" {
		matches = diversifyByCategory(matches)
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// vectorScores embeds the query and scores the closest candidates,
// min-max scaled into [0.5, 1.0]. Returns an empty map when no embedder
// or no stored vectors are available.
func (r *Registry) vectorScores(ctx context.Context, query string, candidates int) map[string]float64 {
	if r.embedder == nil {
		return nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.log.Debug("query embedding failed, lexical retrieval only", "error", err)
		return nil
	}

	stored, err := r.store.AllEmbeddings(ctx)
	if err != nil || len(stored) == 0 {
		return nil
	}

	type sim struct {
		name  string
		value float64
	}
	sims := make([]sim, 0, len(stored))
	for name, vec := range stored {
		sims = append(sims, sim{name, utils.CosineSimilarity(queryVec, vec)})
	}
	sort.Slice(sims, func(i, j int) bool { return sims[i].value > sims[j].value })
	if len(sims) > candidates {
		sims = sims[:candidates]
	}

	lo, hi := sims[len(sims)-1].value, sims[0].value
	scores := make(map[string]float64, len(sims))
	for _, s := range sims {
		if hi > lo {
			scores[s.name] = 0.5 + 0.5*(s.value-lo)/(hi-lo)
		} else {
			scores[s.name] = 1.0
		}
	}
	return scores
}

func lexicalBoost(info *Info, queryLower string, queryWords []string, category, subCategory string) float64 {
	boost := 0.0
	cat := strings.ToLower(info.Category)
	sub := strings.ToLower(info.SubCategory)
	desc := strings.ToLower(info.Description)

	if category != "" && cat == strings.ToLower(category) {
		boost += 0.8
	}
	if subCategory != "" && sub == strings.ToLower(subCategory) {
		boost += 0.4
	}
	if cat != "" && strings.Contains(queryLower, cat) {
		boost += 0.3
	}
	if sub != "" && strings.Contains(queryLower, sub) {
		boost += 0.1
	}
	for _, word := range queryWords {
		if len(word) > 3 && strings.Contains(desc, word) {
			boost += 0.3
			break
		}
	}
	return boost
}

// diversifyByCategory keeps the highest-scored skill per category,
// preserving the incoming score order.
func diversifyByCategory(matches []Match) []Match {
	seen := make(map[string]bool)
	out := matches[:0:0]
	for _, m := range matches {
		cat := m.Skill.Info().Category
		if seen[cat] {
			continue
		}
		seen[cat] = true
		out = append(out, m)
	}
	return out
}
