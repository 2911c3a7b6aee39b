package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// SanitizeOptions controls Sanitize. The zero value strips all markup.
type SanitizeOptions struct {
	AllowHTML bool
}

// Tags permitted when AllowHTML is set. Anything else is stripped, and
// only href/target/rel survive as attributes (no data-* passthrough).
var allowedTags = map[string]bool{
	"b": true, "i": true, "em": true, "strong": true,
	"a": true, "p": true, "br": true,
	"ul": true, "ol": true, "li": true,
}

var allowedSchemes = []string{"http://", "https://", "mailto:"}

var (
	scriptRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	attrRe   = regexp.MustCompile(`(?i)\b(href|target|rel)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s>]+))`)
	nameRe   = regexp.MustCompile(`(?i)^</?\s*([a-z0-9]+)`)
)

// Sanitize trims, truncates to the content ceiling and removes markup.
// By default all tags go and plain text remains; with AllowHTML a fixed
// allow-list of inline and structural tags survives in normalized form.
// Sanitizing already-sanitized output is a no-op.
func Sanitize(s string, opts SanitizeOptions) string {
	s = strings.TrimSpace(s)
	s = truncateRunes(s, MaxContentLength)

	// Script and style bodies are dropped wholesale, not just their tags.
	s = scriptRe.ReplaceAllString(s, "")
	s = styleRe.ReplaceAllString(s, "")

	if opts.AllowHTML {
		s = tagRe.ReplaceAllStringFunc(s, rebuildTag)
	} else {
		// Stripping can splice new tag shapes together ("<<b>script>"), so
		// iterate to a fixpoint. Depth is bounded by the input length.
		for {
			next := tagRe.ReplaceAllString(s, "")
			if next == s {
				break
			}
			s = next
		}
	}
	return strings.TrimSpace(s)
}

// rebuildTag normalizes one tag: allowed tags come back with only their
// permitted attributes, everything else becomes the empty string.
func rebuildTag(tag string) string {
	m := nameRe.FindStringSubmatch(tag)
	if m == nil {
		return ""
	}
	name := strings.ToLower(m[1])
	if !allowedTags[name] {
		return ""
	}
	if strings.HasPrefix(tag, "</") {
		if name == "br" {
			return ""
		}
		return "</" + name + ">"
	}
	if name == "br" {
		return "<br>"
	}
	if name != "a" {
		return "<" + name + ">"
	}

	var b strings.Builder
	b.WriteString("<a")
	for _, attr := range attrRe.FindAllStringSubmatch(tag, -1) {
		key := strings.ToLower(attr[1])
		val := attr[2] + attr[3] + attr[4]
		if key == "href" && !safeHref(val) {
			continue
		}
		if strings.ContainsAny(val, `<>"`) {
			continue
		}
		b.WriteString(" " + key + `="` + val + `"`)
	}
	b.WriteString(">")
	return b.String()
}

// truncateRunes caps s at n runes, never splitting a multi-byte
// sequence.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func safeHref(v string) bool {
	lowered := strings.ToLower(strings.TrimSpace(v))
	for _, scheme := range allowedSchemes {
		if strings.HasPrefix(lowered, scheme) {
			return true
		}
	}
	// Relative links are fine; protocol-relative and script schemes are not.
	return !strings.Contains(lowered, ":") && !strings.HasPrefix(lowered, "//")
}
