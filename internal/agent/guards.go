package agent

import (
	"encoding/json"
	"hash/fnv"

	"github.com/flemzord/parserdesk/internal/provider"
)

// loopDetector spots a model that keeps requesting the same call within
// one turn, e.g. refetching a page or re-running an unchanged parser.
// Calls are keyed by a hash of the name and canonical arguments, since
// parse_with_parser arguments carry whole HTML documents.
type loopDetector struct {
	threshold int
	seen      map[uint64]int
}

func newLoopDetector(threshold int) *loopDetector {
	return &loopDetector{threshold: threshold, seen: make(map[uint64]int)}
}

// record counts a call and reports whether the same call has now been
// seen threshold times.
func (d *loopDetector) record(name string, args json.RawMessage) bool {
	h := fnv.New64a()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(normalizeArgs(args)))
	sig := h.Sum64()

	d.seen[sig]++
	return d.seen[sig] >= d.threshold
}

// normalizeArgs canonicalises a JSON argument object: key order and
// whitespace are dropped. Undecodable input is returned unchanged and
// empty input becomes {}.
func normalizeArgs(args json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}
	var v any
	if json.Unmarshal(args, &v) != nil {
		return string(args)
	}
	canon, err := json.Marshal(v)
	if err != nil {
		return string(args)
	}
	return string(canon)
}

// tokenTracker sums usage over the model calls of one turn against an
// optional budget.
type tokenTracker struct {
	budget int
	usage  provider.TokenUsage
	calls  int
}

func newTokenTracker(budget int) *tokenTracker { return &tokenTracker{budget: budget} }

func (t *tokenTracker) add(u provider.TokenUsage) {
	t.calls++
	t.usage.Add(u)
}

// exceeded reports whether the budget is spent. Zero means unlimited.
func (t *tokenTracker) exceeded() bool {
	return t.budget > 0 && t.usage.TotalTokens >= t.budget
}

func (t *tokenTracker) total() provider.TokenUsage { return t.usage }
