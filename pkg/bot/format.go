package bot

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxMessageLen is Telegram's hard per-message character limit.
const maxMessageLen = 4096

// EscapeHTML escapes the three characters Telegram's HTML mode requires.
// HTML mode handles model output full of underscores, asterisks, and
// brackets far better than Telegram Markdown.
func EscapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

var (
	fencedCodeRe    = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)\n(.*?)```")
	inlineCodeRe    = regexp.MustCompile("`([^`\n]+)`")
	boldStarRe      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	boldUnderRe     = regexp.MustCompile(`__(.+?)__`)
	italicStarRe    = regexp.MustCompile(`\*(\S(?:.*?\S)?)\*`)
	italicUnderRe   = regexp.MustCompile(`(^|[^\w])_(\S(?:.*?\S)?)_($|[^\w])`)
	linkRe          = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	headerRe        = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	strikethroughRe = regexp.MustCompile(`~~(.+?)~~`)
	tableSepCellRe  = regexp.MustCompile(`^[:\-]+$`)
)

// MarkdownToHTML converts the model's markdown output to Telegram's HTML
// subset (<b>, <i>, <code>, <pre>, <a>, <s>). Code blocks and tables are
// extracted to placeholders first so their contents survive escaping and the
// inline conversions untouched.
func MarkdownToHTML(text string) string {
	var placeholders []string
	stash := func(html string) string {
		key := fmt.Sprintf("\x00PH%d\x00", len(placeholders))
		placeholders = append(placeholders, html)
		return key
	}

	text = fencedCodeRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := fencedCodeRe.FindStringSubmatch(m)
		lang, code := sub[1], EscapeHTML(sub[2])
		if lang != "" {
			return stash(fmt.Sprintf(`<pre><code class="language-%s">%s</code></pre>`, EscapeHTML(lang), code))
		}
		return stash("<pre><code>" + code + "</code></pre>")
	})

	text = convertTables(text, stash)

	text = inlineCodeRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := inlineCodeRe.FindStringSubmatch(m)
		return stash("<code>" + EscapeHTML(sub[1]) + "</code>")
	})

	text = EscapeHTML(text)
	text = boldStarRe.ReplaceAllString(text, "<b>$1</b>")
	text = boldUnderRe.ReplaceAllString(text, "<b>$1</b>")
	text = italicStarRe.ReplaceAllString(text, "<i>$1</i>")
	text = italicUnderRe.ReplaceAllString(text, "$1<i>$2</i>$3")
	text = linkRe.ReplaceAllString(text, `<a href="$2">$1</a>`)
	text = headerRe.ReplaceAllString(text, "<b>$1</b>")
	text = strikethroughRe.ReplaceAllString(text, "<s>$1</s>")

	for i, html := range placeholders {
		text = strings.Replace(text, fmt.Sprintf("\x00PH%d\x00", i), html, 1)
	}
	return text
}

// convertTables replaces runs of pipe-delimited markdown table rows with
// aligned monospace <pre> blocks stashed as placeholders.
func convertTables(text string, stash func(string) string) string {
	lines := strings.Split(text, "\n")
	var out []string
	i := 0
	for i < len(lines) {
		if !isTableRow(lines[i]) {
			out = append(out, lines[i])
			i++
			continue
		}
		start := i
		for i < len(lines) && isTableRow(lines[i]) {
			i++
		}
		if i-start < 2 {
			out = append(out, lines[start:i]...)
			continue
		}
		out = append(out, renderTable(lines[start:i], stash))
	}
	return strings.Join(out, "\n")
}

func isTableRow(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|") && len(trimmed) > 1
}

func renderTable(rows []string, stash func(string) string) string {
	var parsed [][]string
	for _, row := range rows {
		trimmed := strings.Trim(strings.TrimSpace(row), "|")
		cells := strings.Split(trimmed, "|")
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		if isSeparatorRow(cells) {
			continue
		}
		parsed = append(parsed, cells)
	}
	if len(parsed) == 0 {
		return strings.Join(rows, "\n")
	}

	numCols := 0
	for _, r := range parsed {
		if len(r) > numCols {
			numCols = len(r)
		}
	}
	widths := make([]int, numCols)
	for _, r := range parsed {
		for i, c := range r {
			if len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
	}

	var b strings.Builder
	for rowIdx, r := range parsed {
		padded := make([]string, numCols)
		for i := 0; i < numCols; i++ {
			cell := ""
			if i < len(r) {
				cell = r[i]
			}
			padded[i] = cell + strings.Repeat(" ", widths[i]-len(cell))
		}
		b.WriteString(strings.Join(padded, "  "))
		if rowIdx == 0 && len(parsed) > 1 {
			b.WriteString("\n")
			seps := make([]string, numCols)
			for i, w := range widths {
				seps[i] = strings.Repeat("─", w)
			}
			b.WriteString(strings.Join(seps, "  "))
		}
		if rowIdx < len(parsed)-1 {
			b.WriteString("\n")
		}
	}
	return stash("<pre>" + EscapeHTML(b.String()) + "</pre>")
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if c == "" || !tableSepCellRe.MatchString(c) {
			return false
		}
	}
	return len(cells) > 0
}

// SplitMessage breaks text into chunks at most limit runes long, preferring
// newline boundaries. Empty chunks are dropped.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = maxMessageLen
	}
	var parts []string
	for utf8.RuneCountInString(text) > limit {
		cut := runeOffset(text, limit)
		nl := strings.LastIndex(text[:cut], "\n")
		if nl < cut/2 {
			nl = cut
		}
		part := strings.TrimRight(text[:nl], "\n")
		if part != "" {
			parts = append(parts, part)
		}
		text = strings.TrimLeft(text[nl:], "\n")
	}
	if strings.TrimSpace(text) != "" {
		parts = append(parts, text)
	}
	return parts
}

// runeOffset returns the byte offset of the n-th rune, or len(s).
func runeOffset(s string, n int) int {
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}
