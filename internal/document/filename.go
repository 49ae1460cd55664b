package document

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// ExpandFilename fills a pattern like "{Ad Soyad}-{Tarih}" with the content of
// the elements whose label matches each placeholder. Unknown placeholders
// expand to nothing. The result is safe to use as a file name; an empty
// result falls back to fallback.
func ExpandFilename(pattern string, side Side, fallback string) string {
	if pattern == "" {
		return fallback
	}

	byLabel := make(map[string]string, len(side.Elements))
	for _, el := range side.Elements {
		if el.Label != "" && el.Content != "" {
			byLabel[el.Label] = el.Content
		}
	}

	expanded := placeholderRe.ReplaceAllStringFunc(pattern, func(m string) string {
		return byLabel[m[1:len(m)-1]]
	})

	name := sanitizeFilename(expanded)
	if name == "" {
		return fallback
	}
	return name
}

func sanitizeFilename(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\n', '\r', '\t':
			return '-'
		}
		return r
	}, s)
	return strings.Trim(strings.TrimSpace(s), "-")
}
