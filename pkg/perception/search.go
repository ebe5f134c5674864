package perception

import (
	"context"
	"sort"
	"strings"

	"github.com/connexhq/connex/pkg/store"
	"github.com/connexhq/connex/pkg/utils"
)

// SensorMatch is one search hit over registered perceptions.
type SensorMatch struct {
	Record *store.PerceptionRecord
	Score  float64
}

// SearchSensors ranks enabled perceptions by vector similarity plus
// lexical boosts, then keeps at most one result per category.
func (l *Layer) SearchSensors(ctx context.Context, query string, limit int) ([]SensorMatch, error) {
	if limit <= 0 {
		limit = 3
	}

	records, err := l.store.ListPerceptions(ctx, true)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	var queryVec []float32
	if l.embedder != nil {
		if v, err := l.embedder.Embed(ctx, query); err == nil {
			queryVec = v
		} else {
			l.log.Debug("sensor search falling back to lexical only", "error", err)
		}
	}

	q := strings.ToLower(query)
	var matches []SensorMatch
	for _, rec := range records {
		score := 0.0
		if queryVec != nil && len(rec.Embedding) > 0 {
			score = utils.CosineSimilarity(queryVec, rec.Embedding)
		}
		score += sensorLexicalBoost(q, rec)
		if score <= 0 {
			continue
		}
		matches = append(matches, SensorMatch{Record: rec, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	seen := make(map[string]bool)
	var out []SensorMatch
	for _, m := range matches {
		cat := strings.ToLower(m.Record.Category)
		if cat != "" && seen[cat] {
			continue
		}
		seen[cat] = true
		out = append(out, m)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func sensorLexicalBoost(query string, rec *store.PerceptionRecord) float64 {
	boost := 0.0
	if c := strings.ToLower(rec.Category); c != "" && strings.Contains(query, c) {
		boost += 0.5
	}
	if sc := strings.ToLower(rec.SubCategory); sc != "" && strings.Contains(query, sc) {
		boost += 0.3
	}
	for _, word := range strings.Fields(strings.ToLower(rec.Description)) {
		if len(word) > 3 && strings.Contains(query, word) {
			boost += 0.3
			break
		}
	}
	return boost
}
