package importers

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// side selects which face of a card is being rendered.
type side int

const (
	questionSide side = iota
	answerSide
)

// Special fields available to every template.
const (
	fieldFrontSide = "FrontSide"
	fieldTags      = "Tags"
	fieldDeck      = "Deck"
	fieldSubdeck   = "Subdeck"
	fieldType      = "Type"
	fieldCard      = "Card"
)

// renderContext carries everything a template can refer to.
type renderContext struct {
	fields   map[string]string
	special  map[string]string
	side     side
	template string
}

func (c renderContext) lookup(name string) (string, bool) {
	if v, ok := c.fields[name]; ok {
		return v, true
	}
	if name == fieldFrontSide {
		// The generated body already carries the question above the answer.
		return "", true
	}
	v, ok := c.special[name]
	return v, ok
}

// templateNode is one element of a parsed template.
type templateNode struct {
	text     string
	field    string
	filters  []string
	section  string
	inverted bool
	children []templateNode
}

var tagPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)

// parseTemplate splits a template into text, field references and
// conditional sections. Sections must be closed in order.
func parseTemplate(tmpl string) ([]templateNode, error) {
	type frame struct {
		name     string
		inverted bool
		nodes    []templateNode
	}
	stack := []frame{{}}
	emit := func(n templateNode) {
		top := &stack[len(stack)-1]
		top.nodes = append(top.nodes, n)
	}

	pos := 0
	for _, loc := range tagPattern.FindAllStringSubmatchIndex(tmpl, -1) {
		if loc[0] > pos {
			emit(templateNode{text: tmpl[pos:loc[0]]})
		}
		pos = loc[1]

		tag := strings.TrimSpace(tmpl[loc[2]:loc[3]])
		switch {
		case tag == "":
			emit(templateNode{text: tmpl[loc[0]:loc[1]]})
		case tag[0] == '#' || tag[0] == '^':
			stack = append(stack, frame{name: strings.TrimSpace(tag[1:]), inverted: tag[0] == '^'})
		case tag[0] == '/':
			name := strings.TrimSpace(tag[1:])
			top := stack[len(stack)-1]
			if len(stack) == 1 || top.name != name {
				return nil, fmt.Errorf("unexpected closing section %q", name)
			}
			stack = stack[:len(stack)-1]
			emit(templateNode{section: top.name, inverted: top.inverted, children: top.nodes})
		default:
			parts := strings.Split(tag, ":")
			emit(templateNode{
				field:   strings.TrimSpace(parts[len(parts)-1]),
				filters: parts[:len(parts)-1],
			})
		}
	}
	if pos < len(tmpl) {
		emit(templateNode{text: tmpl[pos:]})
	}

	if len(stack) != 1 {
		return nil, fmt.Errorf("section %q is not closed", stack[len(stack)-1].name)
	}
	return stack[0].nodes, nil
}

// renderTemplate substitutes field values into a template. References to
// fields the note type does not have are errors.
func renderTemplate(tmpl string, ctx renderContext) (string, error) {
	nodes, err := parseTemplate(tmpl)
	if err != nil {
		return "", fmt.Errorf("template %q: %w", ctx.template, err)
	}

	var b strings.Builder
	if err := renderNodes(&b, nodes, ctx); err != nil {
		return "", fmt.Errorf("template %q: %w", ctx.template, err)
	}
	return b.String(), nil
}

func renderNodes(b *strings.Builder, nodes []templateNode, ctx renderContext) error {
	for _, n := range nodes {
		switch {
		case n.section != "":
			value, ok := ctx.lookup(n.section)
			if !ok {
				return fmt.Errorf("unknown field %q in section", n.section)
			}
			if fieldIsEmpty(value) == n.inverted {
				if err := renderNodes(b, n.children, ctx); err != nil {
					return err
				}
			}
		case n.field != "":
			value, ok := ctx.lookup(n.field)
			if !ok {
				return fmt.Errorf("unknown field %q", n.field)
			}
			b.WriteString(applyFilters(value, n.filters, ctx.side))
		default:
			b.WriteString(n.text)
		}
	}
	return nil
}

// applyFilters evaluates field filters innermost first. Filters without a
// static rendering pass the value through.
func applyFilters(value string, filters []string, s side) string {
	for i := len(filters) - 1; i >= 0; i-- {
		switch strings.TrimSpace(filters[i]) {
		case "text":
			value = html.EscapeString(stripHTML(value))
		case "type":
			// Type-in answers degrade to the expected answer, shown on the back only.
			if s == questionSide {
				return ""
			}
			value = html.EscapeString(stripHTML(value))
		}
	}
	return value
}

// fieldIsEmpty reports whether a value shows nothing: only markup and
// whitespace, and no media.
func fieldIsEmpty(value string) bool {
	lower := strings.ToLower(value)
	if strings.Contains(lower, "<img") || strings.Contains(value, "[sound:") {
		return false
	}
	text := strings.ReplaceAll(stripHTML(value), "\u200b", "")
	return strings.TrimSpace(text) == ""
}

// stripHTML returns the text content of an HTML fragment.
func stripHTML(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return fragment
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}

var answerDivider = regexp.MustCompile(`(?is)^.*?<hr[^>]*\bid\s*=\s*["']?answer\b["']?[^>]*>`)

// answerOnly drops everything up to the answer divider, which repeats the
// question on the back of stock templates.
func answerOnly(rendered string) string {
	return answerDivider.ReplaceAllString(rendered, "")
}
