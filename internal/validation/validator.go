// =============================================================================
// pouch-ops - Row Filter
// =============================================================================
//
// This module decides which PayPal rows are sales worth importing. Skipping a
// row is routine, not a fault: refunds, transfers, fees and test payments all
// appear in the same export as real orders.
//
// FILTER ORDER (short-circuit, first match wins):
//   a. transaction id already seen in this run
//   b. type outside the allow-list
//   c. sender email on the block-list
//   d. empty customer name
//   e. negative gross (refund)
//
// The order matters: a transaction id is claimed at step (a) even when a
// later step rejects the row, so a refund line sharing an id with a payment
// line shadows whichever comes second.
//
// =============================================================================

package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ginjaninja78/pouch-ops/internal/types"
)

// =============================================================================
// SKIP REASONS
// =============================================================================

// SkipReason names why a row was filtered out. The zero value means the row
// is kept.
type SkipReason string

const (
	Keep              SkipReason = ""
	SkipDuplicate     SkipReason = "duplicate_transaction"
	SkipType          SkipReason = "type_not_allowed"
	SkipBlockedSender SkipReason = "blocked_sender"
	SkipNoName        SkipReason = "missing_name"
	SkipRefund        SkipReason = "refund"
)

// =============================================================================
// FILTER
// =============================================================================

// Filter applies the row rules for one import run. It is not safe for
// concurrent use; create one per run.
type Filter struct {
	allowedTypes   map[string]struct{}
	blockedSenders map[string]struct{}
	seen           map[string]struct{}
	stats          map[SkipReason]int
}

// NewFilter builds a Filter from the allow-list and block-list.
// Sender emails are compared case-insensitively.
func NewFilter(allowedTypes, blockedSenders []string) *Filter {
	f := &Filter{
		allowedTypes:   make(map[string]struct{}, len(allowedTypes)),
		blockedSenders: make(map[string]struct{}, len(blockedSenders)),
		seen:           make(map[string]struct{}),
		stats:          make(map[SkipReason]int),
	}
	for _, t := range allowedTypes {
		f.allowedTypes[strings.TrimSpace(t)] = struct{}{}
	}
	for _, s := range blockedSenders {
		f.blockedSenders[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return f
}

// Check returns Keep for rows to import and the first matching SkipReason
// otherwise. Every call is counted in Stats.
func (f *Filter) Check(row types.PayPalRow) SkipReason {
	reason := f.check(row)
	if reason != Keep {
		f.stats[reason]++
	}
	return reason
}

func (f *Filter) check(row types.PayPalRow) SkipReason {
	if _, dup := f.seen[row.TransactionID]; dup {
		return SkipDuplicate
	}
	f.seen[row.TransactionID] = struct{}{}

	if _, ok := f.allowedTypes[row.Type]; !ok {
		return SkipType
	}

	if _, blocked := f.blockedSenders[strings.ToLower(row.FromEmail)]; blocked {
		return SkipBlockedSender
	}

	if strings.TrimSpace(row.Name) == "" {
		return SkipNoName
	}

	if strings.HasPrefix(strings.TrimSpace(row.Gross), "-") {
		return SkipRefund
	}

	return Keep
}

// Seen reports how many distinct transaction ids the filter has claimed.
func (f *Filter) Seen() int {
	return len(f.seen)
}

// Stats returns a copy of the skip counts by reason.
func (f *Filter) Stats() map[SkipReason]int {
	out := make(map[SkipReason]int, len(f.stats))
	for k, v := range f.stats {
		out[k] = v
	}
	return out
}

// =============================================================================
// FORMATTING
// =============================================================================

// FormatStats renders skip counts one per line, sorted by reason, for the
// console summary.
func FormatStats(stats map[SkipReason]int) string {
	if len(stats) == 0 {
		return "  (none)\n"
	}

	reasons := make([]string, 0, len(stats))
	for r := range stats {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)

	var b strings.Builder
	for _, r := range reasons {
		fmt.Fprintf(&b, "  %-22s %d\n", r, stats[SkipReason(r)])
	}
	return b.String()
}
