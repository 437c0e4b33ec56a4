package extraction

import (
	"path"
	"regexp"
	"strings"
)

// pathFields is what the on-disk layout says about one metadata file.
type pathFields struct {
	Group         string
	Arm           string
	CompareFolder string
	Candidate     string
	RelPath       string
}

// derivePathFields reads group/arm/compare folder from the parts of rel. The
// compare folder anchors the other two; without one, the first three parts are
// used positionally.
func derivePathFields(rel, comparePrefix string) pathFields {
	parts := strings.Split(rel, "/")
	at := func(i int) string {
		if i >= 0 && i < len(parts) {
			return parts[i]
		}
		return ""
	}

	f := pathFields{RelPath: rel}
	idx := -1
	for i, p := range parts {
		if strings.HasPrefix(p, comparePrefix) {
			idx = i
			break
		}
	}
	switch {
	case idx < 0:
		f.Group, f.Arm, f.CompareFolder = at(0), at(1), at(2)
	default:
		f.Group, f.Arm, f.CompareFolder = at(idx-2), at(idx-1), parts[idx]
		if idx < 2 {
			f.Group = at(0)
		}
		if idx < 1 {
			f.Arm = at(1)
		}
	}
	if _, after, ok := strings.Cut(f.CompareFolder, "_vs_"); ok {
		f.Candidate = after
	}
	return f
}

// parseWindowsCompareDir returns the last three components of a Windows-style
// compare_dir, or empty strings when there are fewer than three.
func parseWindowsCompareDir(dir string) (group, arm, folder string) {
	var parts []string
	for _, p := range strings.Split(strings.ReplaceAll(dir, `\`, "/"), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 3 {
		return "", "", ""
	}
	n := len(parts)
	return parts[n-3], parts[n-2], parts[n-1]
}

// deriveNodeID finds the node a metadata file belongs to: an exact node folder
// first, then a folder that starts with a node's short name.
func deriveNodeID(rel string, nodeIDs []string) string {
	parts := strings.Split(rel, "/")
	for _, p := range parts {
		for _, id := range nodeIDs {
			if p == id {
				return id
			}
		}
	}
	for _, p := range parts {
		for _, id := range nodeIDs {
			short, _, _ := strings.Cut(id, "_")
			if strings.HasPrefix(p, short) {
				return id
			}
			// Node02 -> Node_02
			if alt := underscored(short); alt != "" && strings.HasPrefix(p, alt) {
				return alt
			}
		}
		if strings.HasPrefix(p, "Node_") {
			return p
		}
	}
	return ""
}

func underscored(short string) string {
	i := strings.IndexFunc(short, func(r rune) bool { return r >= '0' && r <= '9' })
	if i <= 0 {
		return ""
	}
	return short[:i] + "_" + short[i:]
}

func artifactRole(p, summaryFile, esfFile, swapFile string) string {
	base := path.Base(strings.ReplaceAll(p, `\`, "/"))
	switch base {
	case summaryFile:
		return RoleCompareSummary
	case "MISSING_GLOBAL.ndjson":
		return RoleMissingGlobal
	case "EXTRAS_GLOBAL.ndjson":
		return RoleExtrasGlobal
	case esfFile:
		return RoleESF
	case swapFile:
		return RoleSwapCandidates
	}
	return "OTHER:" + base
}

var (
	spaces   = regexp.MustCompile(`\s+`)
	drPrefix = regexp.MustCompile(`(?i)^dr\.\s*`)
)

// normalizeName collapses whitespace and standardizes a leading "Dr.".
func normalizeName(s string) string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return ""
	}
	x := spaces.ReplaceAllString(raw, " ")
	return drPrefix.ReplaceAllString(x, "Dr. ")
}
