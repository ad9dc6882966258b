package rubric

import (
	"errors"
	"fmt"
)

// Selection is the level and reason ids a teacher picked for one competency.
type Selection struct {
	Level     int      `json:"level"`
	ReasonIDs []string `json:"reason_ids"`
}

// Resolution is a validated selection and its score contribution.
type Resolution struct {
	Competency string   `json:"competency"`
	Level      int      `json:"level"`
	Points     int      `json:"points"`
	ReasonIDs  []string `json:"reason_ids"`
}

// Engine validates selections against a catalog.
type Engine struct {
	catalog *Catalog
}

// NewEngine builds an engine over the provided catalog, defaulting to ENEM 2024.
func NewEngine(catalog *Catalog) *Engine {
	if catalog == nil {
		catalog = ENEM2024()
	}
	return &Engine{catalog: catalog}
}

// Catalog exposes the engine's catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Reselect carries the previous reason ids only while the level is unchanged.
func Reselect(previous *Selection, level int) Selection {
	if previous == nil || previous.Level != level {
		return Selection{Level: level}
	}
	ids := make([]string, len(previous.ReasonIDs))
	copy(ids, previous.ReasonIDs)
	return Selection{Level: level, ReasonIDs: ids}
}

// SelectionFromPoints maps a points value (0, 40, ..., 200) onto a level selection.
func SelectionFromPoints(pts int, reasonIDs []string) (Selection, error) {
	if pts < 0 || pts%PointsPerLevel != 0 || pts > 5*PointsPerLevel {
		return Selection{}, fmt.Errorf("%w: %d", ErrInvalidPoints, pts)
	}
	return Selection{Level: pts / PointsPerLevel, ReasonIDs: reasonIDs}, nil
}

// Resolve validates one competency selection and returns its contribution.
// Reason ids that do not belong to the chosen level are dropped before validation.
func (e *Engine) Resolve(key string, sel Selection) (Resolution, error) {
	lvl, err := e.catalog.Level(key, sel.Level)
	if err != nil {
		return Resolution{}, err
	}

	ids := keepLevelIDs(lvl, sel.ReasonIDs)
	res := Resolution{Competency: key, Level: lvl.Level, Points: lvl.Points, ReasonIDs: ids}
	if !lvl.RequiresJustification() {
		return res, nil
	}

	selected := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		selected[id] = struct{}{}
	}

	var missing, extra []string
	for _, m := range lvl.Mandatory {
		if _, ok := selected[m.ID]; !ok {
			missing = append(missing, m.ID)
		}
	}
	if lvl.Rationale != nil {
		out := evaluate(lvl.Rationale, selected)
		if !out.satisfied {
			missing = append(missing, out.missing...)
			extra = append(extra, out.extra...)
			if len(out.missing) == 0 && len(out.extra) == 0 {
				missing = append(missing, lvl.Rationale.leaves()...)
			}
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		return Resolution{}, &JustificationError{Competency: key, Level: lvl.Level, Missing: missing, Extra: extra}
	}
	return res, nil
}

// ResolveAll validates a selection for every catalog competency, in catalog order.
// Justification failures are aggregated; structural errors abort immediately.
func (e *Engine) ResolveAll(selections map[string]Selection) ([]Resolution, error) {
	for key := range selections {
		if _, ok := e.catalog.index[key]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCompetency, key)
		}
	}

	results := make([]Resolution, 0, len(e.catalog.Competencies))
	var failures JustificationErrors
	for _, key := range e.catalog.Keys() {
		sel, ok := selections[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingCompetency, key)
		}
		res, err := e.Resolve(key, sel)
		if err != nil {
			var jErr *JustificationError
			if errors.As(err, &jErr) {
				failures = append(failures, jErr)
				continue
			}
			return nil, err
		}
		results = append(results, res)
	}
	if len(failures) > 0 {
		return nil, failures
	}
	return results, nil
}

func keepLevelIDs(lvl Level, ids []string) []string {
	allowed := make(map[string]struct{})
	for _, id := range lvl.LeafIDs() {
		allowed[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := allowed[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type outcome struct {
	satisfied bool
	touched   bool
	missing   []string
	extra     []string
}

func evaluate(node Node, selected map[string]struct{}) outcome {
	switch n := node.(type) {
	case Criterion:
		return evaluateCriterion(n, selected)
	case *Criterion:
		return evaluateCriterion(*n, selected)
	case Group:
		return evaluateGroup(n, selected)
	case *Group:
		return evaluateGroup(*n, selected)
	default:
		return outcome{}
	}
}

func evaluateCriterion(c Criterion, selected map[string]struct{}) outcome {
	if _, ok := selected[c.ID]; ok {
		return outcome{satisfied: true, touched: true}
	}
	return outcome{missing: []string{c.ID}}
}

func evaluateGroup(g Group, selected map[string]struct{}) outcome {
	results := make([]outcome, len(g.Items))
	touched := false
	for i, item := range g.Items {
		results[i] = evaluate(item, selected)
		touched = touched || results[i].touched
	}

	if g.Operator == OperatorAnd {
		out := outcome{satisfied: true, touched: touched}
		for _, r := range results {
			if !r.satisfied {
				out.satisfied = false
			}
			out.missing = append(out.missing, r.missing...)
			out.extra = append(out.extra, r.extra...)
		}
		return out
	}

	chosen := -1
	for i, r := range results {
		if r.satisfied {
			chosen = i
			break
		}
	}
	if chosen < 0 {
		out := outcome{touched: touched}
		for _, r := range results {
			if r.touched {
				out.missing = append(out.missing, r.missing...)
				out.extra = append(out.extra, r.extra...)
			}
		}
		if len(out.missing) == 0 && len(out.extra) == 0 {
			out.missing = g.leaves()
		}
		return out
	}

	out := outcome{satisfied: true, touched: true}
	if g.Multiple {
		for _, r := range results {
			if r.satisfied {
				out.extra = append(out.extra, r.extra...)
			}
		}
		return out
	}

	out.extra = append(out.extra, results[chosen].extra...)
	for i, item := range g.Items {
		if i == chosen || !results[i].touched {
			continue
		}
		out.satisfied = false
		out.extra = append(out.extra, selectedLeaves(item, selected)...)
	}
	return out
}

func selectedLeaves(node Node, selected map[string]struct{}) []string {
	var ids []string
	for _, id := range node.leaves() {
		if _, ok := selected[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
