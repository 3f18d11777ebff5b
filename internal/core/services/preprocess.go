package services

import (
	"regexp"
	"strings"
)

// Preprocessing regexes, compiled once.
var (
	// Full URLs are reduced to their domain name for context.
	urlRe = regexp.MustCompile(`https?://(?:www\.)?([a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+)(?:/\S*)?`)
	// Bare domain/path references lose the path.
	domainPathRe = regexp.MustCompile(`([a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+)/\S*`)

	mdHeaderRe     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdBoldRe       = regexp.MustCompile(`(\*\*|__)(.*?)(\*\*|__)`)
	mdItalicRe     = regexp.MustCompile(`(\*|_)(.*?)(\*|_)`)
	mdCodeFenceRe  = regexp.MustCompile("(?s)```[a-z]*\n?(.*?)```")
	mdInlineCodeRe = regexp.MustCompile("`([^`]+)`")
	mdImageRe      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdLinkRe       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdRuleRe       = regexp.MustCompile(`(?m)^(-{3,}|\*{3,}|_{3,})$`)
	mdBulletRe     = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	mdNumberRe     = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	mdQuoteRe      = regexp.MustCompile(`(?m)^>\s+`)

	whitespaceRe = regexp.MustCompile(`\s+`)
)

// TextPreprocessor cleans and normalises text before embedding.
// Chat and page content is full of URLs, markdown markup and emoji that
// add tokens without adding meaning; stripping them improves both
// embedding quality and the token budget.
type TextPreprocessor struct{}

// NewTextPreprocessor creates a text preprocessor.
func NewTextPreprocessor() *TextPreprocessor {
	return &TextPreprocessor{}
}

// RemoveURLs strips http(s) URLs, preserving the domain name for context
// (e.g. "https://github.com/a/b" -> "github.com").
func (p *TextPreprocessor) RemoveURLs(text string) string {
	text = urlRe.ReplaceAllString(text, "$1")
	return domainPathRe.ReplaceAllString(text, "$1")
}

// CleanMarkdown strips markdown syntax while preserving the content:
// headers, emphasis markers, code fences, links (keeping the link text),
// images (keeping the alt text), rules, list bullets and blockquotes.
func (p *TextPreprocessor) CleanMarkdown(text string) string {
	text = mdHeaderRe.ReplaceAllString(text, "")
	text = mdCodeFenceRe.ReplaceAllString(text, "$1")
	text = mdInlineCodeRe.ReplaceAllString(text, "$1")
	text = mdBoldRe.ReplaceAllString(text, "$2")
	text = mdItalicRe.ReplaceAllString(text, "$2")
	text = mdImageRe.ReplaceAllString(text, "$1")
	text = mdLinkRe.ReplaceAllString(text, "$1")
	text = mdRuleRe.ReplaceAllString(text, "")
	text = mdBulletRe.ReplaceAllString(text, "")
	text = mdNumberRe.ReplaceAllString(text, "")
	text = mdQuoteRe.ReplaceAllString(text, "")
	return text
}

// RemoveEmojis strips emoji and symbol codepoints while preserving basic
// punctuation and alphanumerics.
func (p *TextPreprocessor) RemoveEmojis(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 0x1F000 && r <= 0x1FFFF: // emoji blocks
			return -1
		case r >= 0x2190 && r <= 0x2BFF: // arrows, symbols, dingbats
			return -1
		case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
			return -1
		}
		return r
	}, text)
}

// NormalizeWhitespace converts newlines to spaces, collapses runs of
// whitespace and trims the result.
func (p *TextPreprocessor) NormalizeWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// Preprocess applies the full cleaning pipeline in order: URLs,
// markdown, emoji, whitespace.
func (p *TextPreprocessor) Preprocess(text string) string {
	text = p.RemoveURLs(text)
	text = p.CleanMarkdown(text)
	text = p.RemoveEmojis(text)
	return p.NormalizeWhitespace(text)
}
