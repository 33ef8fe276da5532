// =============================================================================
// BuildingSync Migration Tools - Document Module
// =============================================================================
//
// This module loads, queries and serializes XML documents. Documents are kept
// as an ordered, attributed tree (beevik/etree) so that a load/save round trip
// preserves sibling order, attribute order, comments and processing
// instructions. Only the edits made by a migration or a transform change the
// output.
//
// LOCATING ELEMENTS:
//   A Locator names an element type by namespace URI and local name. Prefixes
//   are resolved against the in-scope xmlns declarations, so
//
//     <auc:UsefulLife xmlns:auc="http://buildingsync.net/schemas/bedes-auc/2019">
//     <UsefulLife xmlns="http://buildingsync.net/schemas/bedes-auc/2019">
//
//   are both matched by {http://buildingsync.net/schemas/bedes-auc/2019}UsefulLife.
//
// =============================================================================

package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/beevik/etree"

	"github.com/buildingsync/bsync-migrate/internal/types"
)

// errNoRoot is returned for input holding no root element at all.
var errNoRoot = errors.New("document has no root element")

// errManyRoots is returned for input holding more than one root element.
var errManyRoots = errors.New("document has more than one root element")

// =============================================================================
// LOADING
// =============================================================================

// Load reads and parses the document at path.
//
// RETURNS:
//   - The parsed document.
//   - A types.ErrNotFound error if the path cannot be read.
//   - A types.ErrParse error if the content is not well-formed XML.
func Load(path string) (*etree.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrNotFound, path, err)
	}
	return Parse(data, path)
}

// Read parses a document from r. name is only used in error messages.
func Read(r io.Reader, name string) (*etree.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, types.NewError(types.ErrNotFound, name, err)
	}
	return Parse(data, name)
}

// Parse parses a document from bytes. name is only used in error messages.
//
// Besides syntax errors, input is rejected when it does not hold exactly one
// root element, has text outside the root element, or repeats an attribute
// on one element.
func Parse(data []byte, name string) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	doc.ReadSettings.PreserveDuplicateAttrs = true

	if err := doc.ReadFromBytes(data); err != nil {
		return nil, types.NewError(types.ErrParse, name, err)
	}
	if err := checkWellFormed(doc); err != nil {
		return nil, types.NewError(types.ErrParse, name, err)
	}

	return doc, nil
}

// checkWellFormed reports the constraints the tokenizer does not enforce.
func checkWellFormed(doc *etree.Document) error {
	roots := 0
	for _, token := range doc.Child {
		switch t := token.(type) {
		case *etree.Element:
			roots++
		case *etree.CharData:
			if !t.IsWhitespace() {
				return fmt.Errorf("text %q outside the root element", strings.TrimSpace(t.Data))
			}
		}
	}
	switch {
	case roots == 0:
		return errNoRoot
	case roots > 1:
		return errManyRoots
	}
	return checkAttributes(doc.Root())
}

// checkAttributes rejects an element carrying the same attribute twice.
func checkAttributes(el *etree.Element) error {
	seen := make(map[string]bool, len(el.Attr))
	for _, a := range el.Attr {
		key := a.FullKey()
		if seen[key] {
			return fmt.Errorf("duplicate attribute %s on element %s", key, el.FullTag())
		}
		seen[key] = true
	}
	for _, child := range el.ChildElements() {
		if err := checkAttributes(child); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// LOCATING ELEMENTS
// =============================================================================

// Locator identifies an element type by namespace URI and local name.
type Locator struct {
	// Space is the namespace URI. Empty matches elements in no namespace.
	Space string

	// Local is the local element name.
	Local string
}

// String renders the locator in Clark notation: {uri}local.
func (l Locator) String() string {
	if l.Space == "" {
		return l.Local
	}
	return "{" + l.Space + "}" + l.Local
}

// Matches reports whether el has the locator's local name and namespace.
func (l Locator) Matches(el *etree.Element) bool {
	return el.Tag == l.Local && el.NamespaceURI() == l.Space
}

// FindAll returns every descendant of root matching loc, in document order
// (depth-first, pre-order). root itself is not a candidate.
func FindAll(root *etree.Element, loc Locator) []*etree.Element {
	var matches []*etree.Element

	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		for _, child := range el.ChildElements() {
			if loc.Matches(child) {
				matches = append(matches, child)
			}
			walk(child)
		}
	}
	walk(root)

	return matches
}

// Path returns the structural path of el relative to the document's root
// element, for example:
//
//	auc:Facilities/auc:Facility/auc:Measures/auc:Measure[2]/auc:UsefulLife
//
// A 1-based position is appended to a step when its parent holds more than
// one child with the same qualified name. The root element itself is ".".
func Path(el *etree.Element) string {
	var steps []string

	for e := el; !isRoot(e); e = e.Parent() {
		steps = append(steps, step(e))
	}

	if len(steps) == 0 {
		return "."
	}

	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return strings.Join(steps, "/")
}

// isRoot reports whether e is the top of its tree: the document's root
// element or a detached element.
func isRoot(e *etree.Element) bool {
	parent := e.Parent()
	return parent == nil || parent.Parent() == nil && parent.Tag == ""
}

func step(e *etree.Element) string {
	name := e.FullTag()

	var position, count int
	for _, sibling := range e.Parent().ChildElements() {
		if sibling.Space != e.Space || sibling.Tag != e.Tag {
			continue
		}
		count++
		if sibling == e {
			position = count
		}
	}

	if count > 1 {
		return fmt.Sprintf("%s[%d]", name, position)
	}
	return name
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// WriteOptions contains options for document serialization.
type WriteOptions struct {
	// Indent is the number of spaces per nesting level.
	// Zero keeps the document's own whitespace untouched.
	Indent int

	// XMLDeclaration adds <?xml version="1.0" encoding="UTF-8"?> when the
	// document does not already start with one.
	XMLDeclaration bool
}

// PrettyWriteOptions returns the options used for transform output.
func PrettyWriteOptions() WriteOptions {
	return WriteOptions{
		Indent:         2,
		XMLDeclaration: true,
	}
}

// Bytes serializes doc according to options.
func Bytes(doc *etree.Document, options WriteOptions) ([]byte, error) {
	var buffer bytes.Buffer
	if err := Write(doc, &buffer, options); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// Write serializes doc to w according to options.
func Write(doc *etree.Document, w io.Writer, options WriteOptions) error {
	if options.XMLDeclaration && !hasDeclaration(doc) {
		doc.InsertChildAt(0, etree.NewProcInst("xml", `version="1.0" encoding="UTF-8"`))
	}
	if options.Indent > 0 {
		doc.Indent(options.Indent)
	}

	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write XML: %w", err)
	}
	return nil
}

// WriteFile serializes doc in memory, then writes it to path in one call,
// replacing any existing file.
func WriteFile(doc *etree.Document, path string, options WriteOptions) error {
	data, err := Bytes(doc, options)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func hasDeclaration(doc *etree.Document) bool {
	for _, token := range doc.Child {
		switch t := token.(type) {
		case *etree.ProcInst:
			return t.Target == "xml"
		case *etree.CharData:
			if t.IsWhitespace() {
				continue
			}
			return false
		default:
			return false
		}
	}
	return false
}
