package event

import (
	"github.com/weaverqa/weaver/internal/model"
)

// DeduplicateReleases collapses advisory releases that map to the same
// compose. Within a group a release is redundant when another release
// carries a superset (or equal) build list AND a superset (or equal)
// architecture list. Ties among the survivors keep the release with the
// most architectures, then the most builds, then the first seen.
// Incomparable releases are all kept. Input order is otherwise
// preserved.
func DeduplicateReleases(errata []model.Erratum, mapping []string) ([]model.Erratum, error) {
	type entry struct {
		erratum model.Erratum
		pos     int
	}
	groups := map[string][]entry{}
	var order []string
	for i, e := range errata {
		compose, err := DeriveCompose(e.Release, mapping)
		if err != nil {
			return nil, err
		}
		if _, seen := groups[compose]; !seen {
			order = append(order, compose)
		}
		groups[compose] = append(groups[compose], entry{erratum: e, pos: i})
	}

	var out []model.Erratum
	for _, compose := range order {
		group := groups[compose]
		var kept []entry
		for i, cand := range group {
			redundant := false
			for j, other := range group {
				if i == j {
					continue
				}
				if !covers(other.erratum, cand.erratum) {
					continue
				}
				if covers(cand.erratum, other.erratum) {
					// equal coverage: keep the preferred one only
					if prefer(other.erratum, cand.erratum) || (equalCoverage(other.erratum, cand.erratum) && j < i) {
						redundant = true
						break
					}
					continue
				}
				redundant = true
				break
			}
			if !redundant {
				kept = append(kept, cand)
			}
		}
		for _, e := range kept {
			out = append(out, e.erratum)
		}
	}
	return out, nil
}

// covers reports whether a's builds and archs are supersets (or equal)
// of b's.
func covers(a, b model.Erratum) bool {
	return subsetStrings(b.Builds, a.Builds) && subsetArchs(b.Archs, a.Archs)
}

func equalCoverage(a, b model.Erratum) bool {
	return covers(a, b) && covers(b, a)
}

// prefer breaks ties between releases with identical coverage sets:
// most archs, then most builds.
func prefer(a, b model.Erratum) bool {
	if len(a.Archs) != len(b.Archs) {
		return len(a.Archs) > len(b.Archs)
	}
	return len(a.Builds) > len(b.Builds)
}

func subsetStrings(sub, super []string) bool {
	set := make(map[string]bool, len(super))
	for _, s := range super {
		set[s] = true
	}
	for _, s := range sub {
		if !set[s] {
			return false
		}
	}
	return true
}

func subsetArchs(sub, super []model.Arch) bool {
	set := make(map[model.Arch]bool, len(super))
	for _, s := range super {
		set[s] = true
	}
	for _, s := range sub {
		if !set[s] {
			return false
		}
	}
	return true
}
