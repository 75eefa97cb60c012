package markdown

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// Result is the output of a conversion: the Markdown text and the basenames of
// the package media it embeds.
type Result struct {
	Markdown string
	Media    []string
}

var (
	styleBlock  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	scriptBlock = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	typeAnswer  = regexp.MustCompile(`\{\{type:[^}]*\}\}|\[\[type:[^\]]*\]\]`)

	mediaTag   = regexp.MustCompile(`(?is)<(img|audio|video|source)\b[^>]*>`)
	soundTag   = regexp.MustCompile(`\[sound:([^\]]+)\]`)
	remoteSrc  = regexp.MustCompile(`(?i)^(?:https?:|data:|//)`)
	escapedEmb = regexp.MustCompile(`!\\\[\\\[(.*?)\\\]\\\]`)
	escapedChr = regexp.MustCompile(`\\([!-/:-@\[-` + "`" + `{-~])`)

	blankLines = regexp.MustCompile(`\n{3,}`)
)

// Convert turns an HTML fragment from a flashcard into Markdown. The stages
// run in a fixed order; each one consumes vendor syntax so that later stages
// see ordinary HTML only.
func Convert(fragment string) Result {
	media := make(map[string]struct{})

	s := stripNonRendered(fragment)
	s = rewriteClozes(s)
	s = rewriteMediaTags(s, media)
	s = rewriteSounds(s, media)
	md := Structural(s)

	return Result{Markdown: md, Media: sortedKeys(media)}
}

// Structural runs the generic HTML to Markdown conversion followed by embed
// unescaping and whitespace normalization. Applied to its own output it
// returns the input unchanged.
func Structural(fragment string) string {
	md := render(fragment)
	md = unescapeEmbeds(md)
	return normalizeWhitespace(md)
}

func stripNonRendered(s string) string {
	s = styleBlock.ReplaceAllString(s, "")
	s = scriptBlock.ReplaceAllString(s, "")
	return typeAnswer.ReplaceAllString(s, "")
}

func rewriteMediaTags(s string, media map[string]struct{}) string {
	return mediaTag.ReplaceAllStringFunc(s, func(tag string) string {
		src := tagAttrs(tag)["src"]
		if src == "" || remoteSrc.MatchString(src) {
			return tag
		}

		name := mediaBasename(src)
		if name == "" {
			return ""
		}
		media[name] = struct{}{}
		return html.EscapeString(embed(name))
	})
}

// tagAttrs reads the attributes of a single start tag. The first occurrence
// of a repeated attribute wins, as in a browser.
func tagAttrs(tag string) map[string]string {
	z := html.NewTokenizer(strings.NewReader(tag))
	switch z.Next() {
	case html.StartTagToken, html.SelfClosingTagToken:
	default:
		return nil
	}

	tok := z.Token()
	attrs := make(map[string]string, len(tok.Attr))
	for _, a := range tok.Attr {
		if _, ok := attrs[a.Key]; !ok {
			attrs[a.Key] = strings.TrimSpace(a.Val)
		}
	}
	return attrs
}

func rewriteSounds(s string, media map[string]struct{}) string {
	return soundTag.ReplaceAllStringFunc(s, func(m string) string {
		name := html.UnescapeString(soundTag.FindStringSubmatch(m)[1])
		name = strings.TrimSpace(name)
		if name == "" {
			return ""
		}
		media[name] = struct{}{}
		return html.EscapeString(embed(name))
	})
}

// mediaBasename drops any query or fragment from a local source, URL-decodes
// it and keeps only its final element.
func mediaBasename(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	if decoded, err := url.PathUnescape(src); err == nil {
		src = decoded
	}
	base := path.Base(strings.ReplaceAll(src, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func embed(name string) string {
	return "![[" + name + "]]"
}

// unescapeEmbeds restores embeds whose brackets, and any punctuation in the
// file name, were escaped as element text.
func unescapeEmbeds(md string) string {
	return escapedEmb.ReplaceAllStringFunc(md, func(m string) string {
		name := escapedEmb.FindStringSubmatch(m)[1]
		return embed(escapedChr.ReplaceAllString(name, "$1"))
	})
}

// normalizeWhitespace trims trailing spaces, collapses runs of spaces after a
// line's indentation outside fenced code and allows at most one blank line in
// a row.
func normalizeWhitespace(md string) string {
	lines := strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n")
	fence := ""
	for i, line := range lines {
		line = strings.TrimRight(line, " \t")
		if fence != "" {
			if closesFence(line, fence) {
				fence = ""
			}
			lines[i] = line
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		line = line[:indent] + spaceRun.ReplaceAllString(line[indent:], " ")
		fence = openFence(line)
		lines[i] = line
	}
	md = blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(md)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
