package catalog

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// SuggestTypes returns known type ids that look like typeID, strongest tier only:
// case-insensitive matches first, then one-edit typos of the short name, then fuzzy subsequence matches.
func (idx *Index) SuggestTypes(typeID string, n int) []string {
	if n <= 0 {
		n = 3
	}

	if _, ok := idx.nodesByType[typeID]; ok {
		return []string{typeID}
	}

	want := strings.ToLower(typeID)
	wantShort := strings.ToLower(shortName(typeID))

	var caseOnly, oneEdit []string

	for _, def := range idx.nodes {
		if strings.ToLower(def.TypeID) == want {
			caseOnly = append(caseOnly, def.TypeID)

			continue
		}

		short := strings.ToLower(shortName(def.TypeID))
		if short == wantShort || withinOneEdit(short, wantShort) {
			oneEdit = append(oneEdit, def.TypeID)
		}
	}

	if len(caseOnly) > 0 {
		return truncate(caseOnly, n)
	}

	if len(oneEdit) > 0 {
		return truncate(preferSamePackage(oneEdit, packageName(typeID)), n)
	}

	if wantShort == "" {
		return nil
	}

	shorts := make([]string, len(idx.nodes))
	for i, def := range idx.nodes {
		shorts[i] = strings.ToLower(shortName(def.TypeID))
	}

	matches := fuzzy.Find(wantShort, shorts)
	out := make([]string, 0, len(matches))

	for _, m := range matches {
		out = append(out, idx.nodes[m.Index].TypeID)
	}

	return truncate(out, n)
}

// preferSamePackage moves candidates from pkg to the front, keeping relative order.
func preferSamePackage(candidates []string, pkg string) []string {
	if pkg == "" {
		return candidates
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return packageName(candidates[i]) == pkg && packageName(candidates[j]) != pkg
	})

	return candidates
}

func truncate(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}

	return values
}
