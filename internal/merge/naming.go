package merge

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const mergedSuffix = "_merged.root"

// OutputName derives the merged file name from a member's name and the
// submission time: <input base>_<YYYYmmddHHMMSS>_merged.root. Names over
// OutputNameLimit keep as much of the base as fits and replace the rest
// with a UUID.
func OutputName(input string, now time.Time, id uuid.UUID) string {
	base := input
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	name := base + "_" + now.UTC().Format("20060102150405") + mergedSuffix
	if len(name) <= OutputNameLimit {
		return name
	}
	tail := "_" + id.String() + mergedSuffix
	keep := OutputNameLimit - len(tail)
	if keep > len(base) {
		keep = len(base)
	}
	for keep > 0 && keep < len(base) && !utf8.RuneStart(base[keep]) {
		keep--
	}
	return base[:keep] + tail
}

func DefinitionName(id uuid.UUID) string {
	return "merge_" + id.String()
}

// ProjectName is the catalog project staging a definition.
func ProjectName(defname string, now time.Time) string {
	return defname + "_" + now.UTC().Format("20060102_150405")
}

func validProjectName(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	return strings.IndexFunc(name, unicode.IsSpace) < 0
}
