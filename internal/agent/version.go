package agent

import (
	"strconv"
	"strings"
)

// compareVersions orders dotted numeric versions ("1.4.0" < "1.10.0").
// Non-numeric segments fall back to lexical order so arbitrary build ids
// still compare deterministically. Returns -1, 0, or 1.
func compareVersions(a, b string) int {
	if a == b {
		return 0
	}
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv string
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		if av == bv {
			continue
		}
		an, aerr := strconv.Atoi(av)
		bn, berr := strconv.Atoi(bv)
		if aerr == nil && berr == nil {
			if an < bn {
				return -1
			}
			return 1
		}
		if av < bv {
			return -1
		}
		return 1
	}
	return 0
}
