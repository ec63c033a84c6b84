package receiving

import (
	"sync"
)

// Allocation: units placed on one line.
type Allocation struct {
	Line  LineKey `json:"line"`
	Units int     `json:"units"`
}

// ApplyResult: Line is the first line touched, or the line that reported the
// limit when nothing could be applied.
type ApplyResult struct {
	Line         LineKey      `json:"line"`
	Applied      int          `json:"applied"`
	Allocations  []Allocation `json:"allocations,omitempty"`
	LimitReached bool         `json:"limit_reached"`
}

// AllocationTracker keeps per-line counters in combined-order sequence.
type AllocationTracker struct {
	mu    sync.Mutex
	lines []*OrderLine
	byKey map[LineKey]*OrderLine
}

func NewAllocationTracker() *AllocationTracker {
	return &AllocationTracker{byKey: make(map[LineKey]*OrderLine)}
}

// AddLines appends lines at the end of the sequence. Repeated articles of the
// same order are merged into one line. Returns the number of new lines.
func (t *AllocationTracker) AddLines(lines []OrderLine) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	added := 0
	for _, l := range lines {
		if existing, ok := t.byKey[l.Key()]; ok {
			existing.Expected += l.Expected
			existing.AlreadyReceived += l.AlreadyReceived
			existing.Scanned += l.Scanned
			existing.Packed += l.Packed
			existing.Devolution += l.Devolution
			continue
		}
		line := l
		if line.Packed < line.Scanned {
			line.Packed = line.Scanned
		}
		t.lines = append(t.lines, &line)
		t.byKey[line.Key()] = &line
		added++
	}
	return added
}

// RemoveOrder drops every line of the order and returns how many went away.
func (t *AllocationTracker) RemoveOrder(orderID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.lines[:0]
	removed := 0
	for _, l := range t.lines {
		if l.OrderID == orderID {
			delete(t.byKey, l.Key())
			removed++
			continue
		}
		kept = append(kept, l)
	}
	t.lines = kept
	return removed
}

func (t *AllocationTracker) Lines() []OrderLine {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]OrderLine, 0, len(t.lines))
	for _, l := range t.lines {
		out = append(out, *l)
	}
	return out
}

func (t *AllocationTracker) Line(key LineKey) (OrderLine, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.byKey[key]
	if !ok {
		return OrderLine{}, false
	}
	return *l, true
}

func (t *AllocationTracker) HasArticle(articleID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, l := range t.lines {
		if l.ArticleID == articleID {
			return true
		}
	}
	return false
}

func (t *AllocationTracker) ProductCount(orderID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, l := range t.lines {
		if l.OrderID == orderID {
			n++
		}
	}
	return n
}

func (t *AllocationTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lines)
}

// candidates: lines of the article in sequence; caller holds mu.
func (t *AllocationTracker) candidates(articleID string) []*OrderLine {
	var out []*OrderLine
	for _, l := range t.lines {
		if l.ArticleID == articleID {
			out = append(out, l)
		}
	}
	return out
}

// pickTarget: the hinted line, else the first incomplete one, else the first.
func pickTarget(cands []*OrderLine, hint string) (line *OrderLine, hinted bool) {
	if hint != "" {
		for _, l := range cands {
			if l.OrderID == hint {
				return l, true
			}
		}
	}
	for _, l := range cands {
		if !l.Complete() {
			return l, false
		}
	}
	return cands[0], false
}

// Receivable reports how many units ApplyScan would take for the article
// with this hint. Zero means every eligible line is complete.
func (t *AllocationTracker) Receivable(articleID, hint string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cands := t.candidates(articleID)
	if len(cands) == 0 {
		return 0, &NotFoundError{What: "artículo", Key: articleID}
	}
	target, hinted := pickTarget(cands, hint)
	if target.Complete() {
		return 0, nil
	}
	if hinted {
		return target.Remaining(), nil
	}
	n := 0
	for _, l := range cands {
		if !l.Complete() {
			n += l.Remaining()
		}
	}
	return n, nil
}

// ApplyScan adds units to the article. Without a hint the units fill lines in
// combined-order sequence, first incomplete line first. If every line is
// already complete nothing changes and LimitReached is set. Units that would
// push past the ceiling are rejected as a whole.
func (t *AllocationTracker) ApplyScan(articleID string, units int, hint string) (ApplyResult, error) {
	if units <= 0 {
		return ApplyResult{}, validationf("units", "la cantidad debe ser mayor a cero")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cands := t.candidates(articleID)
	if len(cands) == 0 {
		return ApplyResult{}, &NotFoundError{What: "artículo", Key: articleID}
	}

	target, hinted := pickTarget(cands, hint)
	if target.Complete() {
		return ApplyResult{Line: target.Key(), LimitReached: true}, nil
	}

	var plan []Allocation
	if hinted {
		if units > target.Remaining() {
			return ApplyResult{}, validationf("units", "%d unidades exceden lo pendiente (%d) en la orden %s", units, target.Remaining(), target.OrderID)
		}
		plan = []Allocation{{Line: target.Key(), Units: units}}
	} else {
		left := units
		for _, l := range cands {
			if left == 0 {
				break
			}
			if l.Complete() {
				continue
			}
			n := min(left, l.Remaining())
			plan = append(plan, Allocation{Line: l.Key(), Units: n})
			left -= n
		}
		if left > 0 {
			return ApplyResult{}, validationf("units", "%d unidades exceden lo pendiente del artículo %s", left, articleID)
		}
	}

	for _, a := range plan {
		l := t.byKey[a.Line]
		l.Scanned += a.Units
		l.Packed += a.Units
	}
	return ApplyResult{Line: plan[0].Line, Applied: units, Allocations: plan}, nil
}

// SetQuantity overwrites the scanned quantity of the selected line.
func (t *AllocationTracker) SetQuantity(articleID string, qty int, hint string) (ApplyResult, error) {
	if qty < 0 {
		return ApplyResult{}, validationf("quantity", "la cantidad no puede ser negativa")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cands := t.candidates(articleID)
	if len(cands) == 0 {
		return ApplyResult{}, &NotFoundError{What: "artículo", Key: articleID}
	}
	target, _ := pickTarget(cands, hint)
	if qty > target.Ceiling() {
		return ApplyResult{}, validationf("quantity", "%d excede el máximo permitido (%d)", qty, target.Ceiling())
	}
	delta := qty - target.Scanned
	target.Scanned = qty
	target.Packed = qty
	return ApplyResult{Line: target.Key(), Applied: delta, Allocations: []Allocation{{Line: target.Key(), Units: delta}}}, nil
}

// Adjust applies a manual +/- delta. A decrement lowers the packed quantity
// and re-caps scanned to it; it takes from the hinted line or the last line
// that has progress.
func (t *AllocationTracker) Adjust(articleID string, delta int, hint string) (ApplyResult, error) {
	if delta == 0 {
		return ApplyResult{}, validationf("delta", "el ajuste no puede ser cero")
	}
	if delta > 0 {
		return t.ApplyScan(articleID, delta, hint)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cands := t.candidates(articleID)
	if len(cands) == 0 {
		return ApplyResult{}, &NotFoundError{What: "artículo", Key: articleID}
	}

	var target *OrderLine
	if hint != "" {
		for _, l := range cands {
			if l.OrderID == hint {
				target = l
				break
			}
		}
	}
	if target == nil {
		for i := len(cands) - 1; i >= 0; i-- {
			if cands[i].Scanned > 0 {
				target = cands[i]
				break
			}
		}
	}
	n := -delta
	if target == nil || target.Scanned < n {
		return ApplyResult{}, validationf("delta", "no hay %d unidades para descontar", n)
	}

	target.Packed -= n
	if target.Packed < 0 {
		target.Packed = 0
	}
	target.Scanned -= n
	if target.Scanned > target.Packed {
		target.Scanned = target.Packed
	}
	return ApplyResult{Line: target.Key(), Applied: delta, Allocations: []Allocation{{Line: target.Key(), Units: delta}}}, nil
}

// Fill sets the selected line to its maximum in one step.
func (t *AllocationTracker) Fill(articleID string, hint string) (ApplyResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cands := t.candidates(articleID)
	if len(cands) == 0 {
		return ApplyResult{}, &NotFoundError{What: "artículo", Key: articleID}
	}
	target, _ := pickTarget(cands, hint)
	if target.Complete() {
		return ApplyResult{Line: target.Key(), LimitReached: true}, nil
	}
	n := target.Remaining()
	target.Scanned += n
	target.Packed = target.Scanned
	return ApplyResult{Line: target.Key(), Applied: n, Allocations: []Allocation{{Line: target.Key(), Units: n}}}, nil
}

// SetDevolution records units going back to the supplier. It may not exceed
// the expected quantity nor push the ceiling under what was already scanned.
func (t *AllocationTracker) SetDevolution(key LineKey, qty int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.byKey[key]
	if !ok {
		return &NotFoundError{What: "línea", Key: key.String()}
	}
	if qty < 0 {
		return validationf("devolution", "la devolución no puede ser negativa")
	}
	if qty > l.Expected {
		return validationf("devolution", "la devolución (%d) excede lo esperado (%d)", qty, l.Expected)
	}
	if ceiling := l.Expected - qty - l.AlreadyReceived; l.Scanned > ceiling {
		return validationf("devolution", "la devolución deja %d unidades escaneadas por encima del máximo", l.Scanned-max(ceiling, 0))
	}
	l.Devolution = qty
	return nil
}

func (t *AllocationTracker) SetBackorder(key LineKey, backorder bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.byKey[key]
	if !ok {
		return &NotFoundError{What: "línea", Key: key.String()}
	}
	l.Backorder = backorder
	return nil
}

func (t *AllocationTracker) AllComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, l := range t.lines {
		if !l.Complete() {
			return false
		}
	}
	return true
}

// Acknowledged: every line is complete or explicitly left as backorder.
func (t *AllocationTracker) Acknowledged() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, l := range t.lines {
		if !l.Complete() && !l.Backorder {
			return false
		}
	}
	return true
}

func (t *AllocationTracker) HasProgress() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, l := range t.lines {
		if l.Scanned > 0 {
			return true
		}
	}
	return false
}

func (t *AllocationTracker) Devolutions() []Devolution {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Devolution
	for _, l := range t.lines {
		if l.Devolution > 0 {
			out = append(out, Devolution{OrderID: l.OrderID, ArticleID: l.ArticleID, Quantity: l.Devolution})
		}
	}
	return out
}
