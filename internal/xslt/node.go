package xslt

import (
	"strings"

	"github.com/beevik/etree"
)

type nodeKind int

const (
	documentNode nodeKind = iota
	elementNode
	attributeNode
	textNode
	commentNode
	piNode
)

// node is a position in the source tree. etree has no attribute or document
// tokens, so attributes carry their owner element and the document node is
// the tree's top-level element.
type node struct {
	kind nodeKind
	el   *etree.Element
	tok  etree.Token
	attr etree.Attr
}

func documentOf(el *etree.Element) node {
	top := el
	for top.Parent() != nil {
		top = top.Parent()
	}
	return node{kind: documentNode, el: top}
}

func elementOf(el *etree.Element) node {
	return node{kind: elementNode, el: el}
}

// element returns the element a relative path is evaluated from.
func (n node) element() *etree.Element {
	switch n.kind {
	case documentNode, elementNode:
		return n.el
	}
	return nil
}

// parent returns the parent node, or false for the document node.
func (n node) parent() (node, bool) {
	var p *etree.Element
	switch n.kind {
	case documentNode:
		return node{}, false
	case attributeNode:
		return elementOf(n.el), true
	case elementNode:
		p = n.el.Parent()
	default:
		p = tokenParent(n.tok)
	}
	if p == nil {
		return node{}, false
	}
	if p.Parent() == nil {
		return node{kind: documentNode, el: p}, true
	}
	return elementOf(p), true
}

func tokenParent(tok etree.Token) *etree.Element {
	if tok == nil {
		return nil
	}
	return tok.Parent()
}

// children returns the child nodes in document order. Character data
// directly under the document and the XML declaration are not nodes.
func (n node) children() []node {
	el := n.element()
	if el == nil {
		return nil
	}

	var nodes []node
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.Element:
			nodes = append(nodes, elementOf(t))
		case *etree.CharData:
			if n.kind == documentNode {
				continue
			}
			nodes = append(nodes, node{kind: textNode, tok: t})
		case *etree.Comment:
			nodes = append(nodes, node{kind: commentNode, tok: t})
		case *etree.ProcInst:
			if t.Target == "xml" {
				continue
			}
			nodes = append(nodes, node{kind: piNode, tok: t})
		}
	}
	return nodes
}

// attributes returns the attribute nodes of an element, namespace
// declarations included.
func (n node) attributes() []node {
	if n.kind != elementNode {
		return nil
	}
	nodes := make([]node, 0, len(n.el.Attr))
	for _, a := range n.el.Attr {
		nodes = append(nodes, node{kind: attributeNode, el: n.el, attr: a})
	}
	return nodes
}

// name returns the qualified name of an element or attribute.
func (n node) name() string {
	switch n.kind {
	case elementNode:
		return n.el.FullTag()
	case attributeNode:
		return n.attr.FullKey()
	case piNode:
		return n.tok.(*etree.ProcInst).Target
	}
	return ""
}

func (n node) localName() string {
	switch n.kind {
	case elementNode:
		return n.el.Tag
	case attributeNode:
		return n.attr.Key
	case piNode:
		return n.tok.(*etree.ProcInst).Target
	}
	return ""
}

// namespaceURI resolves the node's prefix. Unprefixed attributes are in no
// namespace.
func (n node) namespaceURI() string {
	switch n.kind {
	case elementNode:
		return n.el.NamespaceURI()
	case attributeNode:
		if n.attr.Space == "" {
			return ""
		}
		return lookupNamespace(n.el, n.attr.Space)
	}
	return ""
}

// stringValue returns the XPath string value of the node.
func (n node) stringValue() string {
	switch n.kind {
	case documentNode, elementNode:
		// Character data outside the root element is whitespace, so the
		// document's value is its root element's.
		var b strings.Builder
		collectText(n.el, &b)
		return b.String()
	case attributeNode:
		return n.attr.Value
	case textNode:
		return n.tok.(*etree.CharData).Data
	case commentNode:
		return n.tok.(*etree.Comment).Data
	case piNode:
		return n.tok.(*etree.ProcInst).Inst
	}
	return ""
}

func collectText(el *etree.Element, b *strings.Builder) {
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			b.WriteString(t.Data)
		case *etree.Element:
			collectText(t, b)
		}
	}
}

// lookupNamespace resolves prefix against the xmlns declarations in scope
// at el.
func lookupNamespace(el *etree.Element, prefix string) string {
	if prefix == "xml" {
		return "http://www.w3.org/XML/1998/namespace"
	}
	for e := el; e != nil; e = e.Parent() {
		for _, a := range e.Attr {
			if prefix == "" && a.Space == "" && a.Key == "xmlns" {
				return a.Value
			}
			if prefix != "" && a.Space == "xmlns" && a.Key == prefix {
				return a.Value
			}
		}
	}
	return ""
}

// isNamespaceDecl reports whether a is an xmlns or xmlns:prefix attribute.
func isNamespaceDecl(a etree.Attr) bool {
	return a.Space == "xmlns" || a.Space == "" && a.Key == "xmlns"
}
