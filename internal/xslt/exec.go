package xslt

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/buildingsync/bsync-migrate/internal/types"
)

// maxDepth bounds template recursion.
const maxDepth = 1000

// context is the dynamic state of one instruction: the current node, the
// variables in scope and the mode templates are applied in.
type context struct {
	sheet   *Stylesheet
	doc     node
	node    node
	mode    string
	vars    map[string]value
	globals map[string]value
	params  map[string]value
	depth   int

	// ns is the stylesheet element being executed. Prefixes in its
	// expressions resolve against the namespaces in scope there.
	ns    *etree.Element
	order *documentOrder
}

type instruction func(c *context, inst, out *etree.Element) error

var instructions map[string]instruction

func init() {
	instructions = map[string]instruction{
		"apply-templates":        applyTemplates,
		"call-template":          callTemplate,
		"value-of":               valueOf,
		"copy-of":                copyOf,
		"copy":                   copyNode,
		"element":                element,
		"attribute":              attribute,
		"text":                   text,
		"comment":                comment,
		"processing-instruction": processingInstruction,
		"if":                     ifInstruction,
		"choose":                 choose,
		"for-each":               forEach,
		"message":                message,
	}
}

func (c *context) root() node {
	return c.doc
}

// with returns a child context positioned on n with its own variable scope.
func (c *context) with(n node) *context {
	next := *c
	next.node = n
	next.vars = maps.Clone(c.vars)
	return &next
}

// =============================================================================
// APPLY
// =============================================================================

// Apply transforms doc and returns the result document. The source document
// is not modified.
//
// RETURNS:
//   - A types.ErrTransform error if an instruction or expression is not
//     supported, a template recurses too deeply, xsl:message terminates, or
//     the result does not have exactly one root element.
func (s *Stylesheet) Apply(doc *etree.Document) (*etree.Document, error) {
	result, err := s.apply(doc)
	if err != nil {
		return nil, types.NewError(types.ErrTransform, s.Name, err)
	}
	return result, nil
}

func (s *Stylesheet) apply(doc *etree.Document) (*etree.Document, error) {
	src := node{kind: documentNode, el: &doc.Element}
	c := &context{
		sheet: s,
		doc:   src,
		node:  src,
		vars:  map[string]value{},
		order: newDocumentOrder(),
	}

	for _, decl := range s.globals {
		c.ns = decl
		v, err := c.evaluate(decl)
		if err != nil {
			return nil, fmt.Errorf("xsl:%s %s: %w", decl.Tag, decl.SelectAttrValue("name", ""), err)
		}
		c.vars[decl.SelectAttrValue("name", "")] = v
	}
	c.globals = maps.Clone(c.vars)

	out := etree.NewDocument()
	if err := c.applyTemplates([]node{src}, "", nil, &out.Element); err != nil {
		return nil, err
	}

	if roots := len(out.ChildElements()); roots != 1 {
		return nil, fmt.Errorf("result has %d root elements, want 1", roots)
	}
	return out, nil
}

// applyTemplates processes each node with its best matching template, or the
// built-in template when none matches.
func (c *context) applyTemplates(nodes []node, mode string, params map[string]value, out *etree.Element) error {
	for _, n := range nodes {
		if c.depth >= maxDepth {
			return fmt.Errorf("template recursion deeper than %d", maxDepth)
		}
		if t := c.sheet.match(n, mode); t != nil {
			if err := c.invoke(t, n, mode, params, out); err != nil {
				return err
			}
			continue
		}
		if err := c.builtin(n, mode, out); err != nil {
			return err
		}
	}
	return nil
}

func (c *context) invoke(t *Template, n node, mode string, params map[string]value, out *etree.Element) error {
	next := &context{
		sheet:   c.sheet,
		doc:     c.doc,
		node:    n,
		mode:    mode,
		vars:    maps.Clone(c.globals),
		globals: c.globals,
		params:  params,
		depth:   c.depth + 1,
		order:   c.order,
	}
	return next.execute(t.body, out)
}

// builtin implements the built-in template rules: recurse into documents and
// elements, copy text and attribute values, drop comments and processing
// instructions.
func (c *context) builtin(n node, mode string, out *etree.Element) error {
	switch n.kind {
	case documentNode, elementNode:
		next := c.with(n)
		next.depth++
		return next.applyTemplates(n.children(), mode, nil, out)
	case textNode, attributeNode:
		return appendText(out, n.stringValue())
	}
	return nil
}

// =============================================================================
// SEQUENCE CONSTRUCTORS
// =============================================================================

// execute runs the children of body against out.
func (c *context) execute(body, out *etree.Element) error {
	scope := c.with(c.node)

	for _, tok := range body.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			if !t.IsWhitespace() {
				if err := appendText(out, t.Data); err != nil {
					return err
				}
			}
		case *etree.Element:
			scope.ns = t
			if !isXSL(t) {
				if err := scope.literal(t, out); err != nil {
					return err
				}
				continue
			}
			if err := scope.instruction(t, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *context) instruction(inst, out *etree.Element) error {
	switch inst.Tag {
	case "variable":
		v, err := c.evaluate(inst)
		if err != nil {
			return fmt.Errorf("xsl:variable %s: %w", inst.SelectAttrValue("name", ""), err)
		}
		c.vars[inst.SelectAttrValue("name", "")] = v
		return nil
	case "param":
		name := inst.SelectAttrValue("name", "")
		if v, ok := c.params[name]; ok {
			c.vars[name] = v
			return nil
		}
		v, err := c.evaluate(inst)
		if err != nil {
			return fmt.Errorf("xsl:param %s: %w", name, err)
		}
		c.vars[name] = v
		return nil
	case "sort":
		// Consumed by apply-templates and for-each.
		return nil
	}

	run, ok := instructions[inst.Tag]
	if !ok {
		return fmt.Errorf("unsupported instruction xsl:%s", inst.Tag)
	}
	return run(c, inst, out)
}

// literal copies a literal result element. Attribute values are attribute
// value templates.
func (c *context) literal(el, out *etree.Element) error {
	result := out.CreateElement(el.FullTag())
	if isDocumentLevel(out) {
		for _, a := range c.sheet.namespaces {
			result.CreateAttr(a.FullKey(), a.Value)
		}
	}

	for _, a := range el.Attr {
		switch {
		case isNamespaceDecl(a):
			if a.Value == Namespace || declared(result, a) {
				continue
			}
			if lookupNamespace(result, nsPrefix(a)) != a.Value {
				result.CreateAttr(a.FullKey(), a.Value)
			}
		case a.Space != "" && lookupNamespace(el, a.Space) == Namespace:
		default:
			v, err := c.avt(a.Value)
			if err != nil {
				return fmt.Errorf("attribute %s: %w", a.FullKey(), err)
			}
			result.CreateAttr(a.FullKey(), v)
		}
	}
	ensureNamespace(result, el, result.Space)

	return c.execute(el, result)
}

// evaluate computes the value of a variable, param or with-param: the select
// expression, or the text produced by the content.
func (c *context) evaluate(decl *etree.Element) (value, error) {
	sel := decl.SelectAttr("select")
	if sel == nil {
		fragment := etree.NewElement("fragment")
		if err := c.execute(decl, fragment); err != nil {
			return value{}, err
		}
		return value{nodes: []node{{kind: documentNode, el: fragment}}, isNodes: true}, nil
	}

	expr := strings.TrimSpace(sel.Value)
	if isScalar(expr) {
		s, err := c.stringValue(expr)
		return value{str: s}, err
	}
	if strings.HasPrefix(expr, "$") && !strings.ContainsAny(expr, "/|") {
		v, ok := c.vars[expr[1:]]
		if !ok {
			return value{}, fmt.Errorf("undefined variable %s", expr)
		}
		return v, nil
	}
	nodes, err := c.selectNodes(expr)
	return value{nodes: nodes, isNodes: true}, err
}

// isScalar reports whether expr evaluates to a string rather than nodes.
func isScalar(expr string) bool {
	if _, ok := literal(expr); ok {
		return true
	}
	if isNumber(expr) {
		return true
	}
	_, _, ok := functionCall(expr)
	return ok
}

// withParams evaluates the xsl:with-param children of inst.
func (c *context) withParams(inst *etree.Element) (map[string]value, error) {
	params := map[string]value{}
	for _, child := range inst.ChildElements() {
		if !isXSL(child) {
			return nil, fmt.Errorf("xsl:%s: unexpected element %s", inst.Tag, child.FullTag())
		}
		switch child.Tag {
		case "with-param":
			name := child.SelectAttrValue("name", "")
			if name == "" {
				return nil, fmt.Errorf("xsl:with-param: missing name attribute")
			}
			v, err := c.evaluate(child)
			if err != nil {
				return nil, fmt.Errorf("xsl:with-param %s: %w", name, err)
			}
			params[name] = v
		case "sort":
		default:
			return nil, fmt.Errorf("xsl:%s: unexpected element xsl:%s", inst.Tag, child.Tag)
		}
	}
	return params, nil
}

// sorted orders nodes by the xsl:sort children of inst. Sorting is stable so
// that equal keys keep document order.
func (c *context) sorted(inst *etree.Element, nodes []node) ([]node, error) {
	for _, key := range slices.Backward(inst.ChildElements()) {
		if !isXSL(key) || key.Tag != "sort" {
			continue
		}

		sel := key.SelectAttrValue("select", ".")
		keys := make(map[int]string, len(nodes))
		for i, n := range nodes {
			s, err := c.with(n).stringValue(sel)
			if err != nil {
				return nil, fmt.Errorf("xsl:sort: %w", err)
			}
			keys[i] = s
		}

		numeric := key.SelectAttrValue("data-type", "text") == "number"
		descending := key.SelectAttrValue("order", "ascending") == "descending"

		indexes := make([]int, len(nodes))
		for i := range indexes {
			indexes[i] = i
		}
		slices.SortStableFunc(indexes, func(a, b int) int {
			var r int
			if numeric {
				r = cmp.Compare(toNumber(keys[a]), toNumber(keys[b]))
			} else {
				r = strings.Compare(keys[a], keys[b])
			}
			if descending {
				return -r
			}
			return r
		})

		ordered := make([]node, len(nodes))
		for i, idx := range indexes {
			ordered[i] = nodes[idx]
		}
		nodes = ordered
	}
	return nodes, nil
}

func toNumber(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// =============================================================================
// INSTRUCTIONS
// =============================================================================

func applyTemplates(c *context, inst, out *etree.Element) error {
	nodes, err := c.selectNodes(inst.SelectAttrValue("select", "node()"))
	if err != nil {
		return fmt.Errorf("xsl:apply-templates: %w", err)
	}
	if nodes, err = c.sorted(inst, nodes); err != nil {
		return err
	}
	params, err := c.withParams(inst)
	if err != nil {
		return err
	}
	return c.applyTemplates(nodes, inst.SelectAttrValue("mode", ""), params, out)
}

func callTemplate(c *context, inst, out *etree.Element) error {
	t, err := c.sheet.named(inst.SelectAttrValue("name", ""))
	if err != nil {
		return fmt.Errorf("xsl:call-template: %w", err)
	}
	if c.depth >= maxDepth {
		return fmt.Errorf("template recursion deeper than %d", maxDepth)
	}
	params, err := c.withParams(inst)
	if err != nil {
		return err
	}
	return c.invoke(t, c.node, c.mode, params, out)
}

func valueOf(c *context, inst, out *etree.Element) error {
	sel := inst.SelectAttr("select")
	if sel == nil {
		return fmt.Errorf("xsl:value-of: missing select attribute")
	}
	s, err := c.stringValue(sel.Value)
	if err != nil {
		return fmt.Errorf("xsl:value-of: %w", err)
	}
	return appendText(out, s)
}

func copyOf(c *context, inst, out *etree.Element) error {
	sel := inst.SelectAttr("select")
	if sel == nil {
		return fmt.Errorf("xsl:copy-of: missing select attribute")
	}
	v, err := c.evaluate(inst)
	if err != nil {
		return fmt.Errorf("xsl:copy-of: %w", err)
	}
	if !v.isNodes {
		return appendText(out, v.str)
	}

	for _, n := range v.nodes {
		if err := deepCopy(n, out); err != nil {
			return fmt.Errorf("xsl:copy-of: %w", err)
		}
	}
	return nil
}

func deepCopy(n node, out *etree.Element) error {
	switch n.kind {
	case documentNode:
		for _, tok := range n.el.Child {
			switch t := tok.(type) {
			case *etree.Element:
				if err := deepCopy(elementOf(t), out); err != nil {
					return err
				}
			case *etree.CharData:
				if !isDocumentLevel(out) || !t.IsWhitespace() {
					if err := appendText(out, t.Data); err != nil {
						return err
					}
				}
			case *etree.Comment:
				out.CreateComment(t.Data)
			case *etree.ProcInst:
				if t.Target != "xml" {
					out.CreateProcInst(t.Target, t.Inst)
				}
			}
		}
		return nil
	case elementNode:
		copied := n.el.Copy()
		out.AddChild(copied)
		inheritNamespaces(copied, n.el)
		return nil
	}
	return shallowCopy(n, out)
}

// shallowCopy copies every node kind but elements and documents.
func shallowCopy(n node, out *etree.Element) error {
	switch n.kind {
	case attributeNode:
		if isDocumentLevel(out) {
			return fmt.Errorf("cannot add attribute %s outside an element", n.name())
		}
		out.CreateAttr(n.attr.FullKey(), n.attr.Value)
		return nil
	case textNode:
		return appendText(out, n.stringValue())
	case commentNode:
		out.CreateComment(n.stringValue())
	case piNode:
		out.CreateProcInst(n.name(), n.stringValue())
	}
	return nil
}

func copyNode(c *context, inst, out *etree.Element) error {
	n := c.node
	switch n.kind {
	case documentNode:
		return c.execute(inst, out)
	case elementNode:
		result := out.CreateElement(n.el.FullTag())
		for _, a := range n.el.Attr {
			if isNamespaceDecl(a) {
				result.CreateAttr(a.FullKey(), a.Value)
			}
		}
		ensureNamespace(result, n.el, result.Space)
		return c.execute(inst, result)
	}
	return shallowCopy(n, out)
}

func element(c *context, inst, out *etree.Element) error {
	name, err := c.avt(inst.SelectAttrValue("name", ""))
	if err != nil {
		return fmt.Errorf("xsl:element: %w", err)
	}
	if name == "" {
		return fmt.Errorf("xsl:element: missing name attribute")
	}

	result := out.CreateElement(name)
	if isDocumentLevel(out) {
		for _, a := range c.sheet.namespaces {
			result.CreateAttr(a.FullKey(), a.Value)
		}
	}
	if ns := inst.SelectAttr("namespace"); ns != nil {
		uri, err := c.avt(ns.Value)
		if err != nil {
			return fmt.Errorf("xsl:element: %w", err)
		}
		if lookupNamespace(result, result.Space) != uri {
			result.CreateAttr(nsKey(result.Space), uri)
		}
	} else {
		ensureNamespace(result, inst, result.Space)
	}

	return c.execute(inst, result)
}

func attribute(c *context, inst, out *etree.Element) error {
	name, err := c.avt(inst.SelectAttrValue("name", ""))
	if err != nil {
		return fmt.Errorf("xsl:attribute: %w", err)
	}
	if name == "" {
		return fmt.Errorf("xsl:attribute: missing name attribute")
	}
	if isDocumentLevel(out) {
		return fmt.Errorf("xsl:attribute: %s outside an element", name)
	}

	v, err := c.content(inst)
	if err != nil {
		return fmt.Errorf("xsl:attribute: %w", err)
	}
	attr := out.CreateAttr(name, v)
	if attr.Space != "" {
		ensureNamespace(out, inst, attr.Space)
	}
	return nil
}

func text(_ *context, inst, out *etree.Element) error {
	return appendText(out, inst.Text())
}

func comment(c *context, inst, out *etree.Element) error {
	v, err := c.content(inst)
	if err != nil {
		return fmt.Errorf("xsl:comment: %w", err)
	}
	out.CreateComment(v)
	return nil
}

func processingInstruction(c *context, inst, out *etree.Element) error {
	name, err := c.avt(inst.SelectAttrValue("name", ""))
	if err != nil {
		return fmt.Errorf("xsl:processing-instruction: %w", err)
	}
	if name == "" {
		return fmt.Errorf("xsl:processing-instruction: missing name attribute")
	}
	v, err := c.content(inst)
	if err != nil {
		return fmt.Errorf("xsl:processing-instruction: %w", err)
	}
	out.CreateProcInst(name, v)
	return nil
}

func ifInstruction(c *context, inst, out *etree.Element) error {
	ok, err := c.test(inst.SelectAttrValue("test", ""))
	if err != nil {
		return fmt.Errorf("xsl:if: %w", err)
	}
	if !ok {
		return nil
	}
	return c.execute(inst, out)
}

func choose(c *context, inst, out *etree.Element) error {
	for _, branch := range inst.ChildElements() {
		if !isXSL(branch) {
			return fmt.Errorf("xsl:choose: unexpected element %s", branch.FullTag())
		}
		switch branch.Tag {
		case "when":
			ok, err := c.test(branch.SelectAttrValue("test", ""))
			if err != nil {
				return fmt.Errorf("xsl:when: %w", err)
			}
			if ok {
				return c.execute(branch, out)
			}
		case "otherwise":
			return c.execute(branch, out)
		default:
			return fmt.Errorf("xsl:choose: unexpected element xsl:%s", branch.Tag)
		}
	}
	return nil
}

func forEach(c *context, inst, out *etree.Element) error {
	sel := inst.SelectAttr("select")
	if sel == nil {
		return fmt.Errorf("xsl:for-each: missing select attribute")
	}
	nodes, err := c.selectNodes(sel.Value)
	if err != nil {
		return fmt.Errorf("xsl:for-each: %w", err)
	}
	if nodes, err = c.sorted(inst, nodes); err != nil {
		return err
	}
	for _, n := range nodes {
		if err := c.with(n).execute(inst, out); err != nil {
			return err
		}
	}
	return nil
}

func message(c *context, inst, _ *etree.Element) error {
	if inst.SelectAttrValue("terminate", "no") != "yes" {
		return nil
	}
	v, err := c.content(inst)
	if err != nil {
		return fmt.Errorf("xsl:message: %w", err)
	}
	return fmt.Errorf("terminated by xsl:message: %s", strings.TrimSpace(v))
}

// content runs the children of inst and returns the text they produce.
func (c *context) content(inst *etree.Element) (string, error) {
	fragment := etree.NewElement("fragment")
	if err := c.execute(inst, fragment); err != nil {
		return "", err
	}
	return elementOf(fragment).stringValue(), nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

// isDocumentLevel reports whether out is the result document itself.
func isDocumentLevel(out *etree.Element) bool {
	return out.Parent() == nil && out.Tag == ""
}

func appendText(out *etree.Element, s string) error {
	if s == "" {
		return nil
	}
	if isDocumentLevel(out) {
		if strings.TrimSpace(s) != "" {
			return fmt.Errorf("text %q outside the root element", s)
		}
		return nil
	}
	out.CreateText(s)
	return nil
}

func nsPrefix(a etree.Attr) string {
	if a.Space == "" {
		return ""
	}
	return a.Key
}

func nsKey(prefix string) string {
	if prefix == "" {
		return "xmlns"
	}
	return "xmlns:" + prefix
}

func declared(el *etree.Element, decl etree.Attr) bool {
	return el.SelectAttr(decl.FullKey()) != nil
}

// ensureNamespace declares prefix on el when it is not in scope there but is
// in scope at src.
func ensureNamespace(el, src *etree.Element, prefix string) {
	uri := lookupNamespace(src, prefix)
	if uri == "" || uri == Namespace || lookupNamespace(el, prefix) == uri {
		return
	}
	el.CreateAttr(nsKey(prefix), uri)
}

// inheritNamespaces declares on copied the namespaces its subtree uses that
// were declared on ancestors of src.
func inheritNamespaces(copied, src *etree.Element) {
	used := map[string]bool{}
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		used[el.Space] = true
		for _, a := range el.Attr {
			if a.Space != "" && a.Space != "xmlns" {
				used[a.Space] = true
			}
		}
		for _, child := range el.ChildElements() {
			walk(child)
		}
	}
	walk(copied)

	for _, prefix := range slices.Sorted(maps.Keys(used)) {
		ensureNamespace(copied, src, prefix)
	}
}
