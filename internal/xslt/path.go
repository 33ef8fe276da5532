package xslt

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/beevik/etree"
	"github.com/samber/lo"
)

// =============================================================================
// LOCATION PATHS
// =============================================================================

type axis int

const (
	childAxis axis = iota
	attributeAxis
	selfAxis
	parentAxis
)

// step is one location step: an axis, a node test and its predicates.
type step struct {
	axis       axis
	kind       nodeKind
	anyKind    bool // node(), "." and ".."
	name       nameTest
	predicates []string
}

// evalPath evaluates a location path. Steps are separated by "/" or "//"; a
// path may start with "/", "//" or a variable reference.
func (c *context) evalPath(expr string) ([]node, error) {
	parts := splitTopLevel(expr, "/")

	current := []node{c.node}
	start := 0
	switch first := strings.TrimSpace(parts[0]); {
	case first == "":
		current, start = []node{c.root()}, 1
		if len(parts) == 2 && strings.TrimSpace(parts[1]) == "" {
			return current, nil
		}
	case strings.HasPrefix(first, "$"):
		v, ok := c.vars[first[1:]]
		if !ok {
			return nil, fmt.Errorf("undefined variable %s", first)
		}
		if !v.isNodes {
			return nil, fmt.Errorf("variable %s is not a node-set", first)
		}
		current, start = v.nodes, 1
	}

	descendant := false
	for i := start; i < len(parts); i++ {
		part := strings.TrimSpace(parts[i])
		if part == "" {
			if descendant || i == len(parts)-1 {
				return nil, fmt.Errorf("invalid path %q", expr)
			}
			descendant = true
			continue
		}

		s, err := c.parseStep(part)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", expr, err)
		}
		if descendant {
			current = descendantsOrSelf(current)
			descendant = false
		}
		if current, err = c.evalStep(s, current); err != nil {
			return nil, err
		}
	}
	return c.order.sort(current), nil
}

// parseStep compiles one step. Prefixes in name tests are resolved against
// the namespaces in scope at the stylesheet element being executed.
func (c *context) parseStep(src string) (step, error) {
	test, predicates, err := splitPredicates(src)
	if err != nil {
		return step{}, err
	}

	s := step{axis: childAxis, kind: elementNode, predicates: predicates}
	switch test {
	case ".":
		s.axis, s.anyKind = selfAxis, true
		return s, nil
	case "..":
		s.axis, s.anyKind = parentAxis, true
		return s, nil
	case "node()":
		s.anyKind = true
		return s, nil
	case "text()":
		s.kind = textNode
		return s, nil
	case "comment()":
		s.kind = commentNode
		return s, nil
	case "processing-instruction()":
		s.kind = piNode
		return s, nil
	}

	if name, ok := strings.CutPrefix(test, "@"); ok {
		s.axis, s.kind, test = attributeAxis, attributeNode, name
	}
	if strings.Contains(test, "::") {
		return s, fmt.Errorf("unsupported axis in %q", src)
	}
	if strings.ContainsAny(test, "()@$ \t\n") {
		return s, fmt.Errorf("unsupported step %q", src)
	}

	s.name, err = parseNameTest(test, c.ns, s.axis == attributeAxis)
	return s, err
}

func (s step) candidates(n node) []node {
	switch s.axis {
	case selfAxis:
		return []node{n}
	case parentAxis:
		if p, ok := n.parent(); ok {
			return []node{p}
		}
		return nil
	case attributeAxis:
		return n.attributes()
	}
	return n.children()
}

func (s step) matches(n node) bool {
	if s.anyKind {
		return true
	}
	if n.kind != s.kind {
		return false
	}
	if n.kind == elementNode || n.kind == attributeNode {
		return s.name.matches(n)
	}
	return true
}

// evalStep applies s to every node of from. Predicates see the candidates of
// one context node at a time, so [1] is the first match under each parent.
func (c *context) evalStep(s step, from []node) ([]node, error) {
	var selected []node
	for _, n := range from {
		nodes := lo.Filter(s.candidates(n), func(candidate node, _ int) bool {
			return s.matches(candidate)
		})
		for _, pred := range s.predicates {
			var err error
			if nodes, err = c.filter(nodes, pred); err != nil {
				return nil, err
			}
		}
		selected = append(selected, nodes...)
	}
	return selected, nil
}

// filter keeps the nodes satisfying pred. A number selects by position.
func (c *context) filter(nodes []node, pred string) ([]node, error) {
	pred = strings.TrimSpace(pred)
	if isNumber(pred) {
		position := toNumber(pred)
		i := int(position)
		if float64(i) != position || i < 1 || i > len(nodes) {
			return nil, nil
		}
		return nodes[i-1 : i], nil
	}

	var kept []node
	for _, n := range nodes {
		ok, err := c.with(n).test(pred)
		if err != nil {
			return nil, fmt.Errorf("predicate [%s]: %w", pred, err)
		}
		if ok {
			kept = append(kept, n)
		}
	}
	return kept, nil
}

// descendantsOrSelf expands every node to itself and its descendant
// elements.
func descendantsOrSelf(nodes []node) []node {
	var expanded []node
	var walk func(n node)
	walk = func(n node) {
		expanded = append(expanded, n)
		for _, child := range n.children() {
			if child.kind == elementNode {
				walk(child)
			}
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return expanded
}

// splitPredicates splits "name[p1][p2]" into its node test and predicates.
func splitPredicates(src string) (string, []string, error) {
	open := strings.IndexByte(src, '[')
	if open < 0 {
		if strings.Contains(src, "]") {
			return "", nil, fmt.Errorf("unbalanced brackets in %q", src)
		}
		return src, nil, nil
	}

	var predicates []string
	for rest := src[open:]; rest != ""; {
		end := closing(rest, 0)
		if rest[0] != '[' || end < 0 {
			return "", nil, fmt.Errorf("unbalanced brackets in %q", src)
		}
		predicates = append(predicates, rest[1:end])
		rest = rest[end+1:]
	}
	return src[:open], predicates, nil
}

// =============================================================================
// DOCUMENT ORDER
// =============================================================================

// nodeKey identifies a node independently of how it was reached.
type nodeKey struct {
	el   *etree.Element
	tok  etree.Token
	attr string
}

func (n node) key() nodeKey {
	switch n.kind {
	case documentNode, elementNode:
		return nodeKey{el: n.el}
	case attributeNode:
		return nodeKey{el: n.el, attr: n.attr.FullKey()}
	}
	return nodeKey{tok: n.tok}
}

// top returns the outermost element of the tree holding n.
func (n node) top() *etree.Element {
	el := n.el
	if n.kind != documentNode && n.kind != elementNode && n.kind != attributeNode {
		el = tokenParent(n.tok)
	}
	if el == nil {
		return nil
	}
	return documentOf(el).el
}

// documentOrder numbers the nodes of every tree it has seen in pre-order:
// an element, then its attributes, then its children. Trees are indexed the
// first time one of their nodes is positioned and never change afterwards.
type documentOrder struct {
	index map[nodeKey]int
}

func newDocumentOrder() *documentOrder {
	return &documentOrder{index: map[nodeKey]int{}}
}

func (o *documentOrder) position(n node) int {
	if i, ok := o.index[n.key()]; ok {
		return i
	}
	if top := n.top(); top != nil {
		o.add(top)
	}
	if i, ok := o.index[n.key()]; ok {
		return i
	}
	return -1
}

func (o *documentOrder) add(el *etree.Element) {
	o.index[nodeKey{el: el}] = len(o.index)
	for _, a := range el.Attr {
		o.index[nodeKey{el: el, attr: a.FullKey()}] = len(o.index)
	}
	for _, tok := range el.Child {
		if child, ok := tok.(*etree.Element); ok {
			o.add(child)
			continue
		}
		o.index[nodeKey{tok: tok}] = len(o.index)
	}
}

// sort returns nodes without duplicates, in document order.
func (o *documentOrder) sort(nodes []node) []node {
	if len(nodes) < 2 {
		return nodes
	}
	unique := lo.UniqBy(nodes, node.key)
	slices.SortStableFunc(unique, func(a, b node) int {
		return cmp.Compare(o.position(a), o.position(b))
	})
	return unique
}
