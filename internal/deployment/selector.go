package deployment

import (
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// canonical adds the "v" prefix golang.org/x/mod/semver expects. Descriptor
// versions are written without it ("1.2.3").
func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// ValidVersion reports whether v is a full MAJOR.MINOR.PATCH semantic
// version, with or without a leading "v". Shorthands such as "1.2" are
// rejected.
func ValidVersion(v string) bool {
	if v == "" {
		return false
	}
	c := canonical(v)
	if i := strings.IndexByte(c, '+'); i >= 0 {
		c = c[:i]
	}
	return semver.IsValid(c) && semver.Canonical(c) == c
}

// CompareVersions returns -1, 0 or +1 as a is lower than, equal to or higher
// than b. An invalid version sorts below every valid one.
func CompareVersions(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

// Candidates returns every descriptor strictly newer than current, lowest
// version first. The input order does not matter. An empty current version
// makes every descriptor a candidate.
func Candidates(all []*Descriptor, current string) []*Descriptor {
	var out []*Descriptor
	for _, d := range all {
		if CompareVersions(d.Version, current) > 0 {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return CompareVersions(out[i].Version, out[j].Version) < 0
	})
	return out
}

// IsUpToDate reports whether there is nothing left to apply
func IsUpToDate(candidates []*Descriptor) bool {
	return len(candidates) == 0
}

// Find returns the descriptor with the given version, or nil
func Find(all []*Descriptor, version string) *Descriptor {
	for _, d := range all {
		if CompareVersions(d.Version, version) == 0 {
			return d
		}
	}
	return nil
}

// Latest returns the highest version in all, or nil
func Latest(all []*Descriptor) *Descriptor {
	var latest *Descriptor
	for _, d := range all {
		if latest == nil || CompareVersions(d.Version, latest.Version) > 0 {
			latest = d
		}
	}
	return latest
}
