// =============================================================================
// BuildingSync Migration Tools - XSLT Engine
// =============================================================================
//
// This package applies XSLT 1.0 stylesheets to etree documents. It implements
// the subset of XSLT used by structural migrations such as v2 -> v3:
//
//   TOP-LEVEL:     template, output, variable, param, strip-space, preserve-space
//   INSTRUCTIONS:  apply-templates, call-template, with-param, param, variable,
//                  value-of, copy-of, copy, element, attribute, text, comment,
//                  processing-instruction, if, choose/when/otherwise, for-each,
//                  sort, message
//   PATTERNS:      "/", names, "prefix:name", "prefix:*", "a/b", "/a/b", "*",
//                  "node()", "text()", "comment()", "@*", "@name", unions
//
// Select expressions are evaluated by a small XPath subset: location paths
// with child and descendant steps, predicates, unions and a few functions.
// Name tests compare namespace URIs, so a source document may bind the
// namespace to any prefix or make it the default. Node-sets are always in
// document order without duplicates. Anything outside the subset fails at
// application time with types.ErrTransform, so one unusable template only
// fails the documents that reach it.
//
// A compiled Stylesheet is never mutated by Apply and can be reused across
// any number of documents.
//
// =============================================================================

package xslt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/buildingsync/bsync-migrate/internal/document"
	"github.com/buildingsync/bsync-migrate/internal/types"
)

// Namespace is the XSLT namespace URI.
const Namespace = "http://www.w3.org/1999/XSL/Transform"

// Stylesheet is a compiled, read-only XSLT stylesheet.
type Stylesheet struct {
	// Name identifies the stylesheet in errors, usually its path.
	Name string

	// Indent is false only when xsl:output sets indent="no".
	Indent bool

	templates  []*Template
	globals    []*etree.Element
	namespaces []etree.Attr
}

// Template is one xsl:template declaration.
type Template struct {
	Name     string
	Match    string
	Mode     string
	Priority *float64

	patterns []pattern
	body     *etree.Element
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads and compiles the stylesheet at path.
//
// RETURNS:
//   - types.ErrNotFound if path cannot be read.
//   - types.ErrParse if the file is not well-formed XML.
//   - types.ErrTransform if it is not a usable stylesheet.
func Load(path string) (*Stylesheet, error) {
	doc, err := document.Load(path)
	if err != nil {
		return nil, err
	}
	return Compile(doc, path)
}

// Compile compiles a parsed stylesheet document.
func Compile(doc *etree.Document, name string) (*Stylesheet, error) {
	sheet, err := compile(doc)
	if err != nil {
		return nil, types.NewError(types.ErrTransform, name, err)
	}
	sheet.Name = name
	return sheet, nil
}

func compile(doc *etree.Document) (*Stylesheet, error) {
	root := doc.Root()
	if root == nil || !isXSL(root) || root.Tag != "stylesheet" && root.Tag != "transform" {
		return nil, fmt.Errorf("root element must be xsl:stylesheet or xsl:transform")
	}

	sheet := &Stylesheet{
		Indent:     true,
		namespaces: resultNamespaces(root),
	}

	for _, decl := range root.ChildElements() {
		if !isXSL(decl) {
			// Top-level elements in other namespaces are user data.
			continue
		}

		switch decl.Tag {
		case "template":
			t, err := compileTemplate(decl)
			if err != nil {
				return nil, err
			}
			sheet.templates = append(sheet.templates, t)
		case "output":
			sheet.Indent = decl.SelectAttrValue("indent", "yes") != "no"
		case "variable", "param":
			if decl.SelectAttrValue("name", "") == "" {
				return nil, fmt.Errorf("xsl:%s: missing name attribute", decl.Tag)
			}
			sheet.globals = append(sheet.globals, decl)
		case "strip-space", "preserve-space":
		default:
			return nil, fmt.Errorf("unsupported declaration xsl:%s", decl.Tag)
		}
	}

	return sheet, nil
}

func compileTemplate(decl *etree.Element) (*Template, error) {
	t := &Template{
		Name:  decl.SelectAttrValue("name", ""),
		Match: decl.SelectAttrValue("match", ""),
		Mode:  decl.SelectAttrValue("mode", ""),
		body:  decl,
	}
	if t.Name == "" && t.Match == "" {
		return nil, fmt.Errorf("xsl:template: missing match or name attribute")
	}

	if p := decl.SelectAttr("priority"); p != nil {
		priority, err := strconv.ParseFloat(p.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("xsl:template: invalid priority %q", p.Value)
		}
		t.Priority = &priority
	}

	if t.Match != "" {
		patterns, err := parsePatterns(t.Match, decl)
		if err != nil {
			return nil, fmt.Errorf("xsl:template: %w", err)
		}
		t.patterns = patterns
	}

	return t, nil
}

// resultNamespaces returns the namespace declarations of the stylesheet
// element that literal result elements carry: everything but the XSLT
// namespace and the prefixes listed in exclude-result-prefixes.
func resultNamespaces(root *etree.Element) []etree.Attr {
	excluded := map[string]bool{}
	for _, prefix := range strings.Fields(root.SelectAttrValue("exclude-result-prefixes", "")) {
		excluded[prefix] = true
	}

	var attrs []etree.Attr
	for _, a := range root.Attr {
		if !isNamespaceDecl(a) || a.Value == Namespace {
			continue
		}
		prefix := a.Key
		if a.Space == "" {
			prefix = "#default"
		}
		if excluded["#all"] || excluded[prefix] {
			continue
		}
		attrs = append(attrs, a)
	}
	return attrs
}

// =============================================================================
// TEMPLATE LOOKUP
// =============================================================================

// match returns the template with the highest priority matching n in mode.
// Among equal priorities the last declared template wins.
func (s *Stylesheet) match(n node, mode string) *Template {
	var (
		best     *Template
		priority float64
	)
	for _, t := range s.templates {
		if t.Mode != mode {
			continue
		}
		for _, p := range t.patterns {
			if !p.matches(n) {
				continue
			}
			prio := p.priority
			if t.Priority != nil {
				prio = *t.Priority
			}
			if best == nil || prio >= priority {
				best, priority = t, prio
			}
		}
	}
	return best
}

// named returns the template declared with the given name.
func (s *Stylesheet) named(name string) (*Template, error) {
	var found *Template
	for _, t := range s.templates {
		if t.Name == name {
			found = t
		}
	}
	if found == nil {
		return nil, fmt.Errorf("template %s not found", name)
	}
	return found, nil
}

func isXSL(el *etree.Element) bool {
	return el.NamespaceURI() == Namespace
}

// WriteOptions returns the serialization options for results: two-space
// indentation unless xsl:output says indent="no", and an XML declaration.
func (s *Stylesheet) WriteOptions() document.WriteOptions {
	options := document.PrettyWriteOptions()
	if !s.Indent {
		options.Indent = 0
	}
	return options
}
