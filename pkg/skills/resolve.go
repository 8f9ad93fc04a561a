package skills

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	indexedArgPattern    = regexp.MustCompile(`\$ARGUMENTS\[(\d+)\]`)
	positionalArgPattern = regexp.MustCompile(`\$(\d+)`)
)

// Resolve substitutes placeholders in a skill body, in order:
//
//  1. $ARGUMENTS[N]         the N-th whitespace-separated argument (0-based)
//  2. $N                    the N-th argument, same 0-based indexing
//  3. $ARGUMENTS            the full argument string
//  4. ${CLAUDE_SESSION_ID}  the current session id
//
// Out-of-range references substitute the empty string.
func Resolve(body, args, sessionID string) string {
	fields := strings.Fields(args)

	body = indexedArgPattern.ReplaceAllStringFunc(body, func(match string) string {
		n, err := strconv.Atoi(indexedArgPattern.FindStringSubmatch(match)[1])
		if err != nil || n < 0 || n >= len(fields) {
			return ""
		}
		return fields[n]
	})

	body = positionalArgPattern.ReplaceAllStringFunc(body, func(match string) string {
		n, err := strconv.Atoi(positionalArgPattern.FindStringSubmatch(match)[1])
		if err != nil || n < 0 || n >= len(fields) {
			return ""
		}
		return fields[n]
	})

	body = strings.ReplaceAll(body, "$ARGUMENTS", args)
	body = strings.ReplaceAll(body, "${CLAUDE_SESSION_ID}", sessionID)
	return body
}
