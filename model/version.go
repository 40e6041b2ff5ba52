package model

import (
	"strconv"
	"strings"
)

// Version is a four-part dotted version, e.g. "2.5.0.1".
type Version struct {
	Major, Minor, Build, Revision int
}

// ParseVersion parses a dotted version string. Missing trailing parts are
// treated as zero.
func ParseVersion(s string) Version {
	parts := strings.SplitN(s, ".", 4)
	get := func(i int) int {
		if i >= len(parts) {
			return 0
		}
		n, _ := strconv.Atoi(parts[i])
		return n
	}
	return Version{Major: get(0), Minor: get(1), Build: get(2), Revision: get(3)}
}

// Compare orders a against b component-wise, returning -1, 0, or 1.
func (a Version) Compare(b Version) int {
	for _, pair := range [][2]int{
		{a.Major, b.Major}, {a.Minor, b.Minor}, {a.Build, b.Build}, {a.Revision, b.Revision},
	} {
		if pair[0] < pair[1] {
			return -1
		}
		if pair[0] > pair[1] {
			return 1
		}
	}
	return 0
}

// CompareVersions compares a and b, unless ignoreVersionChecks is set, in
// which case it always reports equal (spec §6 "ignore-version-checks").
func CompareVersions(a, b Version, ignoreVersionChecks bool) int {
	if ignoreVersionChecks {
		return 0
	}
	return a.Compare(b)
}
