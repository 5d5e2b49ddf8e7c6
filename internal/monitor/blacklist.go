package monitor

import (
	"strings"

	"github.com/ac-freeman/open-accountability/internal/api"
)

// Blacklist maps a lowercase keyword to its match count for the current cycle.
type Blacklist map[string]int

// NewBlacklist flattens the keyword tiers into a blacklist with zero counts.
func NewBlacklist(tiers api.KeywordTiers) Blacklist {
	all := tiers.All()
	b := make(Blacklist, len(all))
	for _, kw := range all {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		b[kw] = 0
	}
	return b
}

// Reset zeroes every count.
func (b Blacklist) Reset() {
	for k := range b {
		b[k] = 0
	}
}

// Report returns the keywords with a non-zero count.
func (b Blacklist) Report() api.EventReport {
	report := api.EventReport{}
	for k, n := range b {
		if n > 0 {
			report[k] = n
		}
	}
	return report
}
