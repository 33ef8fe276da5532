package xslt

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// nameTest matches a node name. An empty local name is a wildcard.
type nameTest struct {
	prefix string
	space  string
	local  string
}

func (t nameTest) matches(n node) bool {
	if t.local != "" && n.localName() != t.local {
		return false
	}
	if t.prefix == "" && t.local == "" {
		return true
	}
	return n.namespaceURI() == t.space
}

// pattern is one alternative of a template match attribute.
type pattern struct {
	source   string
	kind     nodeKind
	anyKind  bool // node()
	anchored bool // leading "/": the outermost step is a child of the document
	steps    []nameTest
	priority float64
}

// parsePatterns compiles a match attribute into its alternatives. Prefixes
// are resolved against the namespaces in scope at decl.
func parsePatterns(match string, decl *etree.Element) ([]pattern, error) {
	var patterns []pattern
	for _, alt := range splitTopLevel(match, "|") {
		p, err := parsePattern(strings.TrimSpace(alt), decl)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

func parsePattern(src string, decl *etree.Element) (pattern, error) {
	p := pattern{source: src, kind: elementNode}

	switch src {
	case "":
		return p, fmt.Errorf("empty pattern")
	case "/":
		p.kind = documentNode
		p.priority = -0.5
		return p, nil
	case "node()":
		p.anyKind = true
		p.priority = -0.5
		return p, nil
	case "text()":
		p.kind = textNode
		p.priority = -0.5
		return p, nil
	case "comment()":
		p.kind = commentNode
		p.priority = -0.5
		return p, nil
	case "processing-instruction()":
		p.kind = piNode
		p.priority = -0.5
		return p, nil
	}

	if strings.ContainsAny(src, "[]()$") {
		return p, fmt.Errorf("unsupported pattern %q", src)
	}

	rest := src
	switch {
	case strings.HasPrefix(rest, "//"):
		rest = rest[2:]
	case strings.HasPrefix(rest, "/"):
		p.anchored = true
		rest = rest[1:]
	}
	if strings.Contains(rest, "//") {
		return p, fmt.Errorf("unsupported pattern %q", src)
	}

	parts := strings.Split(rest, "/")
	for i, part := range parts {
		if strings.HasPrefix(part, "@") {
			if i != len(parts)-1 {
				return p, fmt.Errorf("unsupported pattern %q", src)
			}
			p.kind = attributeNode
			part = part[1:]
		}
		test, err := parseNameTest(part, decl, p.kind == attributeNode)
		if err != nil {
			return p, fmt.Errorf("pattern %q: %w", src, err)
		}
		p.steps = append(p.steps, test)
	}

	last := p.steps[len(p.steps)-1]
	switch {
	case len(p.steps) > 1 || p.anchored:
		p.priority = 0.5
	case last.local != "":
		p.priority = 0
	case last.prefix != "":
		p.priority = -0.25
	default:
		p.priority = -0.5
	}
	return p, nil
}

func parseNameTest(name string, decl *etree.Element, attribute bool) (nameTest, error) {
	if name == "" {
		return nameTest{}, fmt.Errorf("empty step")
	}
	if name == "*" {
		return nameTest{}, nil
	}

	prefix, local, found := strings.Cut(name, ":")
	if !found {
		// Unprefixed names are in no namespace.
		return nameTest{local: name}, nil
	}

	space := lookupNamespace(decl, prefix)
	if space == "" {
		return nameTest{}, fmt.Errorf("undeclared namespace prefix %q", prefix)
	}
	if local == "*" {
		local = ""
	}
	return nameTest{prefix: prefix, space: space, local: local}, nil
}

// matches reports whether n is selected by the pattern.
func (p pattern) matches(n node) bool {
	if p.anyKind {
		return n.kind != documentNode && n.kind != attributeNode
	}
	if n.kind != p.kind {
		return false
	}
	if p.kind != elementNode && p.kind != attributeNode {
		return true
	}

	curr := n
	for i := len(p.steps) - 1; i >= 0; i-- {
		if curr.kind != elementNode && curr.kind != attributeNode {
			return false
		}
		if !p.steps[i].matches(curr) {
			return false
		}
		parent, ok := curr.parent()
		if !ok {
			return false
		}
		curr = parent
	}

	if p.anchored {
		return curr.kind == documentNode
	}
	return true
}

// splitTopLevel splits s on sep, ignoring separators inside quotes,
// brackets and parentheses.
func splitTopLevel(s, sep string) []string {
	var (
		parts []string
		depth int
		quote rune
		start int
	)
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '(' || r == '[':
			depth++
		case r == ')' || r == ']':
			depth--
		case depth == 0 && strings.HasPrefix(s[i:], sep):
			parts = append(parts, s[start:i])
			start = i + len(sep)
		}
	}
	return append(parts, s[start:])
}
