package rubric

import (
	"errors"
	"math"
	"strings"
)

// ENEMMaxScore is the sum of five competencies at level 5.
const ENEMMaxScore = 1000

// DefaultMaxAnnulmentReasons caps the stored annulment reasons.
const DefaultMaxAnnulmentReasons = 5

// ErrNoAnnulmentReason is returned when an annulment carries no usable reason.
var ErrNoAnnulmentReason = errors.New("annulment requires at least one reason")

// ErrInvalidPAS is returned for negative PAS counters.
var ErrInvalidPAS = errors.New("NC and NE must be >= 0")

// Score holds the raw and 0..10 scaled totals of an essay.
type Score struct {
	Raw    float64 `json:"raw_score"`
	Scaled float64 `json:"scaled_score"`
}

// ScoreENEM sums the competency contributions (0..1000) and scales them to 0..10.
func ScoreENEM(resolutions []Resolution) Score {
	raw := 0
	for _, r := range resolutions {
		raw += r.Points
	}
	return Score{Raw: float64(raw), Scaled: round2(float64(raw) * 10 / ENEMMaxScore)}
}

// ScorePAS computes NR = max(0, NC - 2*NE/NL). NL below 1 is treated as 1.
func ScorePAS(nc, ne, nl float64) (Score, error) {
	if nc < 0 || ne < 0 {
		return Score{}, ErrInvalidPAS
	}
	if nl < 1 {
		nl = 1
	}
	raw := math.Max(0, nc-(2*ne/nl))
	return Score{Raw: round2(raw), Scaled: round2(math.Min(10, raw))}, nil
}

// NormalizeAnnulmentReasons trims, drops empties, de-duplicates and caps the reasons.
func NormalizeAnnulmentReasons(reasons []string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultMaxAnnulmentReasons
	}
	seen := make(map[string]struct{}, len(reasons))
	out := make([]string, 0, len(reasons))
	for _, reason := range reasons {
		trimmed := strings.TrimSpace(reason)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
		if len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrNoAnnulmentReason
	}
	return out, nil
}

// BimesterScore returns the score counted towards the bimester, nil when the essay does not count.
func BimesterScore(scaled float64, countInBimester, annulled bool) *float64 {
	if !countInBimester {
		return nil
	}
	value := round2(scaled)
	if annulled {
		value = 0
	}
	return &value
}

func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
