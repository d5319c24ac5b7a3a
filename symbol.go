package wasmy

import (
	"strconv"
	"strings"
)

// handlePrefix is the literal prefix under which guest method handlers are
// exported. A symbol naming method n is formatted as handlePrefix + "n".
const handlePrefix = "handle_"

// onloadSymbol is the optional no-arg export run once per (URI, thread)
// immediately after instantiation.
const onloadSymbol = "onload"

// formatSymbol renders the guest export name for method n.
func formatSymbol(n int32) string {
	return handlePrefix + strconv.FormatInt(int64(n), 10)
}

// parseSymbol recovers the method number encoded in a guest export name,
// validating the literal prefix and parsing the remainder as a non-negative
// decimal int32. Names that don't match the prefix, or whose suffix isn't a
// valid non-negative int32, are not handler symbols: ok is false and no error
// is raised, matching the enumeration rule that unrecognized exports are
// ignored rather than rejected.
func parseSymbol(name string) (method int32, ok bool) {
	suffix, found := strings.CutPrefix(name, handlePrefix)
	if !found || suffix == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(suffix, 10, 32)
	if err != nil || n < 0 {
		return 0, false
	}
	return int32(n), true
}
