package markdown

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// softBreak marks a line boundary requested by a line-level element such as
// div. Adjacent soft and hard breaks merge into the hard ones, so a div next
// to a paragraph does not add an extra empty line.
const softBreak = "\x1e"

const trimSet = " \t\n" + softBreak

var (
	breakRun   = regexp.MustCompile("[\n\x1e]+")
	spaceRun   = regexp.MustCompile(`[ \t\f\r]+`)
	lineIndent = regexp.MustCompile(`\n +`)
	blankRun   = regexp.MustCompile(`\n{2,}`)
	entityLike = regexp.MustCompile(`&(#[0-9]+|#[xX][0-9a-fA-F]+|[a-zA-Z][a-zA-Z0-9]*);`)
	langClass  = regexp.MustCompile(`(?:^|\s)(?:language|lang)-([\w+#.-]+)`)
	fenceStart = regexp.MustCompile("^[ \t]*(?:(?:[-+*]|[0-9]+[.)])[ \t]+)*(`{3,}|~{3,})")
	listMarker = regexp.MustCompile(`^[ \t]*(?:[-+*]|[0-9]+[.)])(?:[ \t]|$)`)
)

// render parses the fragment into a node tree and emits Markdown for it.
func render(fragment string) string {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		return fragment
	}

	var b strings.Builder
	for _, n := range nodes {
		b.WriteString(visit(n))
	}
	return resolveBreaks(b.String())
}

func visit(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		if n.Parent == nil {
			return markdownText(n.Data)
		}
		return escapeText(collapseSpace(n.Data))
	case html.ElementNode:
		return visitElement(n)
	case html.DocumentNode:
		return visitChildren(n)
	default:
		return ""
	}
}

func visitChildren(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(visit(c))
	}
	return b.String()
}

func visitElement(n *html.Node) string {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Head, atom.Title, atom.Noscript, atom.Template:
		return ""
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		text := strings.ReplaceAll(trimBlock(visitChildren(n)), "\n", " ")
		if text == "" {
			return ""
		}
		level := int(n.Data[1] - '0')
		return block(strings.Repeat("#", level) + " " + text)
	case atom.P:
		return block(trimBlock(visitChildren(n)))
	case atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer, atom.Main,
		atom.Figure, atom.Figcaption, atom.Center, atom.Dl, atom.Dt, atom.Dd, atom.Address:
		content := trimBlock(visitChildren(n))
		if content == "" {
			if containsBreak(n) {
				return "\n\n"
			}
			return ""
		}
		return softBreak + content + softBreak
	case atom.Br:
		return "\n"
	case atom.Hr:
		return block("---")
	case atom.B, atom.Strong:
		return wrapInline(visitChildren(n), "**")
	case atom.I, atom.Em, atom.Cite, atom.Dfn:
		return wrapInline(visitChildren(n), "*")
	case atom.Del, atom.S, atom.Strike:
		return wrapInline(visitChildren(n), "~~")
	case atom.Mark:
		return wrapInline(visitChildren(n), "==")
	case atom.Code, atom.Kbd, atom.Samp, atom.Tt:
		return inlineCode(textContent(n))
	case atom.Pre:
		return codeBlock(n)
	case atom.A:
		return link(n)
	case atom.Ul:
		return list(n, false)
	case atom.Ol:
		return list(n, true)
	case atom.Li:
		return softBreak + "- " + tighten(trimBlock(visitChildren(n))) + softBreak
	case atom.Blockquote:
		return blockquote(n)
	case atom.Table:
		return table(n)
	case atom.Img:
		return remoteImage(n)
	case atom.Audio, atom.Video, atom.Source:
		if src := strings.TrimSpace(attr(n, "src")); remoteSrc.MatchString(src) {
			return "[" + escapeLabel(path.Base(src)) + "](" + escapeDestination(src) + ")"
		}
		if n.DataAtom == atom.Source {
			return ""
		}
		return visitChildren(n)
	case atom.Input, atom.Button, atom.Select:
		return ""
	default:
		return visitChildren(n)
	}
}

func block(s string) string {
	if s == "" {
		return ""
	}
	return "\n\n" + s + "\n\n"
}

// trimBlock resolves pending soft breaks and trims surrounding whitespace.
func trimBlock(s string) string {
	return strings.TrimSpace(resolveBreaks(s))
}

// resolveBreaks turns every run of soft and hard breaks into its hard
// breaks, or a single newline when the run has none.
func resolveBreaks(s string) string {
	if !strings.Contains(s, softBreak) {
		return s
	}
	return breakRun.ReplaceAllStringFunc(s, func(run string) string {
		hard := strings.Count(run, "\n")
		if hard == 0 {
			hard = 1
		}
		return strings.Repeat("\n", hard)
	})
}

func containsBreak(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Br || containsBreak(c)) {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, softBreak, "")
	s = spaceRun.ReplaceAllString(s, " ")
	return lineIndent.ReplaceAllString(s, "\n")
}

// escapeText escapes element text so that neither the HTML parser nor a
// Markdown reader turns literal characters back into markup.
func escapeText(s string) string {
	return escapeMarkdown(escapeHTML(s))
}

// escapeHTML re-encodes what the HTML parser decoded.
func escapeHTML(s string) string {
	s = entityLike.ReplaceAllString(s, "&amp;$1;")
	return strings.ReplaceAll(s, "<", "&lt;")
}

// escapeMarkdown puts a backslash before characters that would start inline
// markup anywhere, or block markup at the start of a line. Characters that
// already follow a backslash are left alone, so escaping twice changes
// nothing.
func escapeMarkdown(s string) string {
	var b strings.Builder
	lineStart := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if i > 0 && s[i-1] == '\\' {
			b.WriteByte(c)
			lineStart = false
			continue
		}

		switch {
		case c == '\n':
			b.WriteByte(c)
			lineStart = true
			continue
		case lineStart && (c == ' ' || c == '\t'):
			b.WriteByte(c)
			continue
		case lineStart && c >= '0' && c <= '9':
			j := i
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			b.WriteString(s[i:j])
			i = j - 1
			if j < len(s) && (s[j] == '.' || s[j] == ')') && followedByBreak(s, j+1) {
				b.WriteString("\\")
				b.WriteByte(s[j])
				i = j
			}
			lineStart = false
			continue
		case lineStart && c == '#':
			j := i
			for j < len(s) && s[j] == '#' {
				j++
			}
			if j-i <= 6 && followedByBreak(s, j) {
				b.WriteByte('\\')
			}
		case lineStart && c == '>':
			b.WriteByte('\\')
		case lineStart && (c == '-' || c == '+') && followedByBreak(s, i+1):
			b.WriteByte('\\')
		case c == '*' || c == '_' || c == '`' || c == '[' || c == ']':
			b.WriteByte('\\')
		case (c == '=' || c == '~') && ((i > 0 && s[i-1] == c) || (i+1 < len(s) && s[i+1] == c)):
			b.WriteByte('\\')
		}
		b.WriteByte(c)
		lineStart = false
	}
	return b.String()
}

func followedByBreak(s string, i int) bool {
	return i >= len(s) || s[i] == ' ' || s[i] == '\t' || s[i] == '\n'
}

// markdownText handles text that sits outside any element. Such text is
// Markdown already, whether the field was written that way or it is the
// output of an earlier conversion, so its lines keep their structure: list
// continuations keep their indentation and fenced code is left verbatim.
// Only HTML is re-escaped, and never inside code.
func markdownText(s string) string {
	s = strings.NewReplacer("\r\n", "\n", "\u00a0", " ", softBreak, "").Replace(s)

	lines := strings.Split(s, "\n")
	fence := ""
	nested := false
	for i, line := range lines {
		if fence != "" {
			if closesFence(line, fence) {
				fence = ""
			}
			continue
		}

		switch {
		case i == 0:
			line = spaceRun.ReplaceAllString(line, " ")
		case strings.TrimSpace(line) == "":
		case !nested:
			line = strings.TrimLeft(line, " \t")
		}

		fence = openFence(line)
		if strings.TrimSpace(line) != "" {
			nested = listMarker.MatchString(line) || line[0] == ' ' || line[0] == '\t'
		}
		lines[i] = outsideCodeSpans(line, escapeHTML)
	}
	return strings.Join(lines, "\n")
}

// openFence returns the fence a line opens, or "" when it opens none. A
// backtick fence cannot have backticks after it; such a line is inline code.
func openFence(line string) string {
	m := fenceStart.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	if m[1][0] == '`' && strings.Contains(line[len(m[0]):], "`") {
		return ""
	}
	return m[1]
}

func closesFence(line, fence string) bool {
	t := strings.TrimSpace(line)
	return len(t) >= len(fence) && strings.Trim(t, fence[:1]) == ""
}

// outsideCodeSpans applies fn to the parts of a line that are not inline
// code.
func outsideCodeSpans(line string, fn func(string) string) string {
	var b strings.Builder
	rest := line
	for {
		open := unescapedBacktick(rest)
		if open < 0 {
			break
		}
		n := runLength(rest[open:], '`')
		closing := backtickRun(rest[open+n:], n)
		if closing < 0 {
			b.WriteString(fn(rest[:open+n]))
			rest = rest[open+n:]
			continue
		}
		end := open + n + closing + n
		b.WriteString(fn(rest[:open]))
		b.WriteString(rest[open:end])
		rest = rest[end:]
	}
	b.WriteString(fn(rest))
	return b.String()
}

func unescapedBacktick(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '`' && (i == 0 || s[i-1] != '\\') {
			return i
		}
	}
	return -1
}

// backtickRun finds a run of exactly n backticks.
func backtickRun(s string, n int) int {
	for i := 0; i < len(s); {
		if s[i] != '`' {
			i++
			continue
		}
		l := runLength(s[i:], '`')
		if l == n {
			return i
		}
		i += l
	}
	return -1
}

func runLength(s string, ch byte) int {
	n := 0
	for n < len(s) && s[n] == ch {
		n++
	}
	return n
}

// wrapInline surrounds content with an emphasis marker, keeping leading and
// trailing whitespace outside of it.
func wrapInline(content, marker string) string {
	left := len(content) - len(strings.TrimLeft(content, trimSet))
	right := len(strings.TrimRight(content, trimSet))
	if right <= left {
		return content
	}
	return content[:left] + marker + content[left:right] + marker + content[right:]
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func inlineCode(code string) string {
	code = strings.ReplaceAll(code, "\n", " ")
	if strings.TrimSpace(code) == "" {
		return code
	}
	fence := strings.Repeat("`", longestRun(code, '`')+1)
	if strings.HasPrefix(code, "`") || strings.HasSuffix(code, "`") {
		code = " " + code + " "
	}
	return fence + code + fence
}

func codeBlock(pre *html.Node) string {
	code := strings.Trim(textContent(pre), "\n")
	fence := "```"
	if n := longestRun(code, '`'); n >= len(fence) {
		fence = strings.Repeat("`", n+1)
	}
	return block(fence + codeLanguage(pre) + "\n" + code + "\n" + fence)
}

func codeLanguage(pre *html.Node) string {
	candidates := []*html.Node{pre}
	for c := pre.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Code {
			candidates = append(candidates, c)
		}
	}
	for _, n := range candidates {
		if m := langClass.FindStringSubmatch(attr(n, "class")); m != nil {
			return m[1]
		}
	}
	return ""
}

func longestRun(s string, ch byte) int {
	longest, current := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == ch {
			current++
			if current > longest {
				longest = current
			}
			continue
		}
		current = 0
	}
	return longest
}

func link(a *html.Node) string {
	text := strings.ReplaceAll(trimBlock(visitChildren(a)), "\n", " ")
	href := strings.TrimSpace(attr(a, "href"))
	if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return text
	}
	if text == "" {
		text = escapeLabel(href)
	}
	return "[" + text + "](" + escapeDestination(href) + ")"
}

// remoteImage renders an image that is not package media. Local images were
// turned into embeds before parsing and render as nothing here.
func remoteImage(img *html.Node) string {
	src := strings.TrimSpace(attr(img, "src"))
	if !remoteSrc.MatchString(src) {
		return ""
	}
	alt := strings.Join(strings.Fields(attr(img, "alt")), " ")
	return "![" + escapeLabel(alt) + "](" + escapeDestination(src) + ")"
}

func escapeLabel(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}

func escapeDestination(s string) string {
	return strings.NewReplacer(" ", "%20", "(", "%28", ")", "%29").Replace(s)
}

func list(n *html.Node, ordered bool) string {
	number := 1
	if ordered {
		if start, err := strconv.Atoi(attr(n, "start")); err == nil {
			number = start
		}
	}

	var items []string
	width := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Li:
			marker := "- "
			if ordered {
				marker = strconv.Itoa(number) + ". "
				number++
			}
			width = len(marker)
			body := tighten(trimBlock(visitChildren(c)))
			items = append(items, marker+indentContinuation(body, width))
		case atom.Ul, atom.Ol:
			// Editors often nest a list directly in its parent list
			// rather than in the preceding item.
			nested := tighten(trimBlock(visit(c)))
			if nested == "" {
				continue
			}
			if len(items) == 0 {
				items = append(items, nested)
				continue
			}
			items[len(items)-1] += "\n" + indentAll(nested, width)
		}
	}

	if len(items) == 0 {
		return ""
	}
	return block(strings.Join(items, "\n"))
}

// tighten removes blank lines so list items stay in a tight list.
func tighten(s string) string {
	return blankRun.ReplaceAllString(s, "\n")
}

func indentContinuation(s string, width int) string {
	lines := strings.Split(s, "\n")
	pad := strings.Repeat(" ", width)
	for i := 1; i < len(lines); i++ {
		if lines[i] != "" {
			lines[i] = pad + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}

func indentAll(s string, width int) string {
	return indentContinuation("\n"+s, width)[1:]
}

func blockquote(n *html.Node) string {
	body := trimBlock(visitChildren(n))
	if body == "" {
		return ""
	}
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		if l == "" {
			lines[i] = ">"
			continue
		}
		lines[i] = "> " + l
	}
	return block(strings.Join(lines, "\n"))
}

func table(n *html.Node) string {
	var rows [][]string
	var collect func(*html.Node)
	collect = func(p *html.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Thead, atom.Tbody, atom.Tfoot:
				collect(c)
			case atom.Tr:
				rows = append(rows, tableRow(c))
			}
		}
	}
	collect(n)

	columns := 0
	for _, r := range rows {
		if len(r) > columns {
			columns = len(r)
		}
	}
	if columns == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range rows {
		for len(r) < columns {
			r = append(r, "")
		}
		b.WriteString("| " + strings.Join(r, " | ") + " |\n")
		if i == 0 {
			b.WriteString("|" + strings.Repeat(" --- |", columns) + "\n")
		}
	}
	return block(strings.TrimSuffix(b.String(), "\n"))
}

func tableRow(tr *html.Node) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
			continue
		}
		cell := strings.ReplaceAll(trimBlock(visitChildren(c)), "\n", " ")
		cells = append(cells, strings.ReplaceAll(cell, "|", `\|`))
	}
	return cells
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
