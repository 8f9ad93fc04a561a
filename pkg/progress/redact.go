// Package progress maintains the live progress message for one in-flight
// query: an append-only activity log rendered into an editable chat message,
// throttled to the platform's edit cadence, rolled over near the size cap,
// and redacted before anything secret-shaped can be displayed.
package progress

import "regexp"

// CompiledPattern holds a pre-compiled secret pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// secretPatterns are compiled eagerly at package init so a bad pattern fails
// fast rather than at first render. Replacements keep an identifying prefix
// so users can tell what kind of credential was hidden.
var secretPatterns = compilePatterns([]struct {
	name        string
	pattern     string
	replacement string
}{
	{"anthropic_key", `sk-ant-[A-Za-z0-9_-]{8,}`, "sk-ant-***"},
	{"openai_key", `sk-[A-Za-z0-9]{16,}`, "sk-***"},
	{"github_token", `(?:ghp|gho)_[A-Za-z0-9]{16,}`, "gh***"},
	{"github_pat", `github_pat_[A-Za-z0-9_]{16,}`, "github_pat_***"},
	{"slack_token", `xoxb-[A-Za-z0-9-]+`, "xoxb-***"},
	{"aws_access_key", `AKIA[A-Z0-9]{12,}`, "AKIA***"},
	{"token_flag", `(--?[A-Za-z-]*token[A-Za-z-]*[= ])\S+`, "${1}***"},
	{"env_secret", `\b([A-Z_]*(?:TOKEN|SECRET|PASSWORD|API_KEY)[A-Z_]*=)\S+`, "${1}***"},
	{"auth_header", `(?i)\b(bearer|basic)\s+[A-Za-z0-9+/=_.-]{8,}`, "${1} ***"},
	{"url_credentials", `://[^/\s:@]+:[^/\s@]+@`, "://***:***@"},
})

func compilePatterns(defs []struct {
	name        string
	pattern     string
	replacement string
}) []*CompiledPattern {
	patterns := make([]*CompiledPattern, 0, len(defs))
	for _, d := range defs {
		patterns = append(patterns, &CompiledPattern{
			Name:        d.name,
			Regex:       regexp.MustCompile(d.pattern),
			Replacement: d.replacement,
		})
	}
	return patterns
}

// Redact replaces secret-shaped substrings with identifying stubs. Every
// string destined for a progress message passes through here, including
// truncated detail strings.
func Redact(s string) string {
	for _, p := range secretPatterns {
		s = p.Regex.ReplaceAllString(s, p.Replacement)
	}
	return s
}
