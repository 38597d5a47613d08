package feeds

import (
	"strconv"
	"strings"
	"time"

	"github.com/jaytaylor/html2text"
)

const displayDateLayout = "January 2, 2006"

// ParseDuration converts a feed duration string to whole seconds. Accepts a
// plain integer ("90") or colon-delimited components ("01:30", "01:00:00")
// weighted 1/60/3600 from least to most significant. Anything unparseable,
// including the empty string, yields 0.
func ParseDuration(value string) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return 0
		}
		return seconds
	}

	if !strings.Contains(value, ":") {
		return 0
	}

	parts := strings.Split(value, ":")
	weights := []int64{1, 60, 3600}
	if len(parts) > len(weights) {
		return 0
	}

	var total int64
	for i, part := range parts {
		component, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return 0
		}
		total += component * weights[len(parts)-1-i]
	}
	return total
}

// StripHTML reduces feed description markup to plain text. Conversion errors
// fall back to the raw input rather than dropping the description.
func StripHTML(html string) string {
	html = strings.TrimSpace(html)
	if html == "" {
		return ""
	}
	text, err := html2text.FromString(html, html2text.Options{TextOnly: true})
	if err != nil {
		return html
	}
	return strings.TrimSpace(text)
}

// ParseDate parses an RFC-822-family feed date. Unparsable input falls back to
// now so a single bad item never fails a whole refresh.
func ParseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	layouts := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Now()
}

// DisplayDate normalizes a feed date to the "January 2, 2006" display format.
func DisplayDate(value string) string {
	return ParseDate(value).Format(displayDateLayout)
}
