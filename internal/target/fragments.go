package target

import "github.com/samber/lo"

// aggregateCompileFragments folds a builder's own compile flags with
// every depended-on export's CompileOptionFragment, in export
// construction order, deduplicated keeping the first occurrence — flag
// presence, not position, is what matters for compile options.
func aggregateCompileFragments(own []string, exports []ExportLookup) []string {
	all := make([]string, 0, len(own))
	all = append(all, own...)
	for _, x := range exports {
		all = append(all, x.CompileOptionFragment()...)
	}
	return lo.Uniq(all)
}

// aggregateLinkFragments folds link flags the same way, but keeping the
// *last* occurrence of a duplicate: make-dot-cpp's Export.cpp preserves
// declaration order while letting a re-declared lib move to the end, so
// link order mirrors which dependency most recently asked for it.
func aggregateLinkFragments(own []string, exports []ExportLookup) []string {
	all := make([]string, 0, len(own))
	all = append(all, own...)
	for _, x := range exports {
		all = append(all, x.LinkOptionFragment()...)
	}
	return lastOccurrenceWins(all)
}

func lastOccurrenceWins(items []string) []string {
	reversed := lo.Reverse(append([]string{}, items...))
	return lo.Reverse(lo.Uniq(reversed))
}
