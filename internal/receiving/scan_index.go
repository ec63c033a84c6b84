package receiving

import "sort"

// ScanTarget: where a scanned code lands. Code is the article's primary code,
// the one the backend knows reservations by.
type ScanTarget struct {
	ArticleID    string
	OrderID      string
	Code         string
	UnitsPerScan int
}

// ScanIndex maps normalized codes to line targets. It holds keys only and is
// never mutated after BuildScanIndex; changes produce a new index.
type ScanIndex struct {
	targets map[string]ScanTarget
}

// BuildScanIndex indexes primary codes and barcodes with multiplier 1, inner
// pack codes with their multiplier, and strategy aliases (key -> article).
// Lines are taken in combined-order sequence; the first line of an article
// owns its codes.
func BuildScanIndex(normalize func(string) string, lines []OrderLine, packs []InnerPackCode, aliases map[string]string) *ScanIndex {
	idx := &ScanIndex{targets: make(map[string]ScanTarget, len(lines)*2+len(packs)+len(aliases))}
	first := make(map[string]OrderLine, len(lines))

	put := func(raw string, t ScanTarget) {
		key := normalize(raw)
		if key == "" {
			return
		}
		if _, exists := idx.targets[key]; exists {
			return
		}
		idx.targets[key] = t
	}

	for _, l := range lines {
		if _, ok := first[l.ArticleID]; !ok {
			first[l.ArticleID] = l
		}
		t := ScanTarget{ArticleID: l.ArticleID, OrderID: l.OrderID, Code: l.Code, UnitsPerScan: 1}
		put(l.Code, t)
		put(l.Barcode, t)
	}

	for _, p := range packs {
		l, ok := first[p.ArticleID]
		if !ok {
			continue
		}
		mult := p.Multiplier
		if mult < 1 {
			mult = 1
		}
		put(p.Code, ScanTarget{ArticleID: l.ArticleID, OrderID: l.OrderID, Code: l.Code, UnitsPerScan: mult})
	}

	for key, article := range aliases {
		l, ok := first[article]
		if !ok {
			continue
		}
		put(key, ScanTarget{ArticleID: l.ArticleID, OrderID: l.OrderID, Code: l.Code, UnitsPerScan: 1})
	}
	return idx
}

func (i *ScanIndex) Lookup(code string) (ScanTarget, bool) {
	if i == nil {
		return ScanTarget{}, false
	}
	t, ok := i.targets[code]
	return t, ok
}

func (i *ScanIndex) Has(code string) bool {
	_, ok := i.Lookup(code)
	return ok
}

func (i *ScanIndex) Len() int {
	if i == nil {
		return 0
	}
	return len(i.targets)
}

// Codes returns the primary code of every indexed article, once each.
func (i *ScanIndex) Codes() []string {
	if i == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range i.targets {
		if t.Code != "" && !seen[t.Code] {
			seen[t.Code] = true
			out = append(out, t.Code)
		}
	}
	sort.Strings(out)
	return out
}
