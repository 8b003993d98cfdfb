package client

import (
	"iter"
	"slices"
	"strings"
)

// StrategySet holds the three independent axes the extractor varies when
// upstream blocks an invocation. A nil entry in an axis means "no extra args".
type StrategySet struct {
	Credentials   [][]string
	Impersonation [][]string
	Clients       [][]string
}

// defaultClientStrategies cycles through alternate YouTube player clients to
// dodge per-client blocks.
var defaultClientStrategies = [][]string{
	nil,
	{"--extractor-args", "youtube:player_client=web"},
	{"--extractor-args", "youtube:player_client=ios,web"},
	{"--extractor-args", "youtube:player_client=tv,web"},
}

// Attempts yields every full argument list in credential, impersonation,
// client nesting order, skipping exact duplicates. The sequence can be
// ranged over any number of times.
func (s StrategySet) Attempts(base, operation []string) iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		seen := make(map[string]struct{})
		for _, credential := range orNone(s.Credentials) {
			for _, impersonation := range orNone(s.Impersonation) {
				for _, client := range orNone(s.Clients) {
					args := slices.Concat(base, credential, impersonation, client, operation)
					key := strings.Join(args, "\x00")
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
					if !yield(args) {
						return
					}
				}
			}
		}
	}
}

// WithoutImpersonation returns the same set with the impersonation axis
// reduced to "none".
func (s StrategySet) WithoutImpersonation() StrategySet {
	s.Impersonation = [][]string{nil}
	return s
}

func orNone(axis [][]string) [][]string {
	if len(axis) == 0 {
		return [][]string{nil}
	}
	return axis
}
