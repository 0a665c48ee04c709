// Package extract finds downloadable image links in model replies.
//
// The remote service has emitted two link formats over time, so the pattern is
// a configurable Strategy rather than a single canonical regexp.
package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// Strategy selects which link format is recognized
type Strategy int

const (
	// StrategyMarkdownImage matches generic ![alt](url) image links
	StrategyMarkdownImage Strategy = iota
	// StrategyDownloadLink matches [label](url) links with a fixed label
	StrategyDownloadLink
)

// DefaultDownloadLabel is the link text the service uses for generated files
const DefaultDownloadLabel = "点击下载"

// DefaultExtension is used when a URL carries no plausible extension
const DefaultExtension = "png"

const maxExtensionLen = 5

var (
	markdownImagePattern = regexp.MustCompile(`!\[.*?\]\((https?://[^\s]+)\)`)
	extensionPattern     = regexp.MustCompile(`\.([a-zA-Z0-9]+)(?:\?|$)`)
)

func (s Strategy) String() string {
	switch s {
	case StrategyMarkdownImage:
		return "markdown-image"
	case StrategyDownloadLink:
		return "download-link"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy maps a configuration value to a Strategy
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown-image", "markdown", "image":
		return StrategyMarkdownImage, nil
	case "download-link", "download", "label":
		return StrategyDownloadLink, nil
	default:
		return 0, fmt.Errorf("unknown extraction strategy %q (want markdown-image or download-link)", s)
	}
}

// Extractor pulls URLs out of reply text
type Extractor struct {
	strategy Strategy
	pattern  *regexp.Regexp
}

// New creates an Extractor. label is only used by StrategyDownloadLink;
// empty means DefaultDownloadLabel.
func New(strategy Strategy, label string) *Extractor {
	e := &Extractor{strategy: strategy}

	switch strategy {
	case StrategyDownloadLink:
		if label == "" {
			label = DefaultDownloadLabel
		}
		e.pattern = regexp.MustCompile(`\[` + regexp.QuoteMeta(label) + `\]\((https?://[^\s\)]+)\)`)
	default:
		e.strategy = StrategyMarkdownImage
		e.pattern = markdownImagePattern
	}

	return e
}

// Strategy returns the active strategy
func (e *Extractor) Strategy() Strategy {
	return e.strategy
}

// Links returns every matched URL in order of appearance
func (e *Extractor) Links(content string) []string {
	matches := e.pattern.FindAllStringSubmatch(content, -1)
	links := make([]string, 0, len(matches))
	for _, m := range matches {
		links = append(links, m[1])
	}
	return links
}

// Extension infers a file extension from a URL: a dot-prefixed alphanumeric
// run ending at the query string or the end of the URL, if it is at most five
// characters. Anything else yields DefaultExtension.
func Extension(url string) string {
	m := extensionPattern.FindStringSubmatch(url)
	if m == nil {
		return DefaultExtension
	}
	if ext := m[1]; len(ext) <= maxExtensionLen {
		return ext
	}
	return DefaultExtension
}

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName builds the deterministic artifact name for a downloaded image.
// The response id comes from the remote service, so it is reduced to a single
// path element with no separators or leading dots.
func FileName(responseID string, choiceIndex, matchIndex int, url string) string {
	responseID = strings.TrimLeft(unsafeIDChars.ReplaceAllString(responseID, "_"), ".")
	if responseID == "" {
		responseID = "noid"
	}
	return fmt.Sprintf("%s-%d-%d.%s", responseID, choiceIndex, matchIndex, Extension(url))
}
