package augmenter

import (
	"regexp"
	"strings"
)

const excerptParagraphs = 2

var (
	paragraphBreakPattern = regexp.MustCompile(`\n{2,}`)
	inlineCodePattern     = regexp.MustCompile("`[^`]*`")
	markdownLinkPattern   = regexp.MustCompile(`!?\[[^\]]*]\([^)]*\)`)
	markdownMarkPattern   = regexp.MustCompile("[#*_>~`]")
	whitespaceRunPattern  = regexp.MustCompile(`\s+`)
)

// ExtractExcerpt derives a plain-text excerpt from the first two non-empty
// markdown paragraphs of content.
func ExtractExcerpt(content string) string {
	if content == "" {
		return ""
	}

	paragraphs := make([]string, 0, excerptParagraphs)
	for _, paragraph := range paragraphBreakPattern.Split(content, -1) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		paragraphs = append(paragraphs, paragraph)
		if len(paragraphs) == excerptParagraphs {
			break
		}
	}

	combined := strings.Join(paragraphs, " ")
	combined = inlineCodePattern.ReplaceAllString(combined, "")
	combined = markdownLinkPattern.ReplaceAllString(combined, "")
	combined = markdownMarkPattern.ReplaceAllString(combined, "")
	combined = whitespaceRunPattern.ReplaceAllString(combined, " ")

	return strings.TrimSpace(combined)
}
