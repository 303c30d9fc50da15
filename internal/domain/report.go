package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// Histogram maps a bucket (length, clique size, class count) to its number
// of occurrences. It serializes as a JSON object with string keys, e.g.
// {"8":3}.
type Histogram map[int]int

// Count is one entry of a Ranking.
type Count struct {
	Value string
	Count int
}

// Ranking is an ordered list of values with counts, most frequent first.
// It serializes as a list of pairs: [["angel",6],["?",2]].
type Ranking []Count

func (r Ranking) MarshalJSON() ([]byte, error) {
	pairs := make([][2]any, len(r))
	for i, c := range r {
		pairs[i] = [2]any{c.Value, c.Count}
	}
	return json.Marshal(pairs)
}

func (r *Ranking) UnmarshalJSON(data []byte) error {
	var pairs [][2]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("ranking: %w", err)
	}
	out := make(Ranking, 0, len(pairs))
	for _, p := range pairs {
		var c Count
		if err := json.Unmarshal(p[0], &c.Value); err != nil {
			return fmt.Errorf("ranking value: %w", err)
		}
		if err := json.Unmarshal(p[1], &c.Count); err != nil {
			return fmt.Errorf("ranking count: %w", err)
		}
		out = append(out, c)
	}
	*r = out
	return nil
}

// Report is the analytic snapshot of one completed audit. It is created
// once and never mutated.
type Report struct {
	TotalHashes int `json:"total_hashes"`

	// Cracked is the recovered fraction in [0,1].
	Cracked float64 `json:"cracked"`

	MeanPasswordLength *float64  `json:"mean_pw_len"`
	Lengths            Histogram `json:"lengths"`

	// Cliques never holds the key 1.
	Cliques       Histogram `json:"cliques"`
	LargestClique *int      `json:"largest_clique"`
	Cliquiness    *float64  `json:"cliquiness"`

	CharClasses  Histogram `json:"char_classes"`
	TopBasewords Ranking   `json:"top_basewords"`
	TopPatterns  Ranking   `json:"top_patterns"`

	// Incomplete marks the placeholder kept when the analysis failed. Only
	// TotalHashes is meaningful then.
	Incomplete bool `json:"incomplete,omitempty"`
}

// CrackedCount converts the cracked fraction back into an account count.
func (r *Report) CrackedCount() int {
	if r == nil {
		return 0
	}
	return int(math.Round(r.Cracked * float64(r.TotalHashes)))
}

// NonUniquePasswords counts accounts that share their hash with at least
// one other account.
func (r *Report) NonUniquePasswords() int {
	if r == nil {
		return 0
	}
	total := 0
	for size, groups := range r.Cliques {
		total += size * groups
	}
	return total
}
