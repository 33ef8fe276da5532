package xslt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// value is the result of a variable or parameter: a node-set or a string.
type value struct {
	nodes   []node
	str     string
	isNodes bool
}

func (v value) String() string {
	if !v.isNodes {
		return v.str
	}
	if len(v.nodes) == 0 {
		return ""
	}
	return v.nodes[0].stringValue()
}

// =============================================================================
// NODE-SET EXPRESSIONS
// =============================================================================

// selectNodes evaluates a node-set expression against the context node. The
// result is in document order without duplicates.
//
// Supported: unions of location paths built from child ("/") and
// descendant ("//") steps. A step is ".", "..", "*", "name", "prefix:name",
// "prefix:*", "@name", "@*", "node()", "text()", "comment()" or
// "processing-instruction()", followed by any number of predicates: a
// position such as [2] or a boolean expression such as [@ID='a']. A path may
// start at "/" or at a node-set variable.
func (c *context) selectNodes(expr string) ([]node, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty expression")
	}

	alts := splitTopLevel(expr, "|")
	if len(alts) == 1 {
		return c.evalPath(expr)
	}

	var nodes []node
	for _, alt := range alts {
		selected, err := c.selectNodes(alt)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, selected...)
	}
	return c.order.sort(nodes), nil
}

// =============================================================================
// STRING EXPRESSIONS
// =============================================================================

// stringValue evaluates expr to a string: literals, numbers, variables, the
// functions name(), local-name(), string(), concat(), normalize-space() and
// count(), or the string value of the first selected node.
func (c *context) stringValue(expr string) (string, error) {
	expr = strings.TrimSpace(expr)

	if s, ok := literal(expr); ok {
		return s, nil
	}
	if isNumber(expr) {
		return expr, nil
	}
	if isVariable(expr) {
		v, ok := c.vars[expr[1:]]
		if !ok {
			return "", fmt.Errorf("undefined variable %s", expr)
		}
		return v.String(), nil
	}

	if name, args, ok := functionCall(expr); ok {
		return c.callFunction(name, args)
	}

	nodes, err := c.selectNodes(expr)
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "", nil
	}
	return nodes[0].stringValue(), nil
}

func (c *context) callFunction(name string, args []string) (string, error) {
	arg := func() (node, bool, error) {
		if len(args) == 0 {
			return c.node, true, nil
		}
		nodes, err := c.selectNodes(args[0])
		if err != nil || len(nodes) == 0 {
			return node{}, false, err
		}
		return nodes[0], true, nil
	}

	switch name {
	case "name", "local-name", "namespace-uri":
		n, ok, err := arg()
		if err != nil || !ok {
			return "", err
		}
		switch name {
		case "name":
			return n.name(), nil
		case "local-name":
			return n.localName(), nil
		}
		return n.namespaceURI(), nil
	case "string", "normalize-space":
		s := c.node.stringValue()
		if len(args) > 0 {
			var err error
			if s, err = c.stringValue(args[0]); err != nil {
				return "", err
			}
		}
		if name == "normalize-space" {
			s = strings.Join(strings.Fields(s), " ")
		}
		return s, nil
	case "concat":
		var b strings.Builder
		for _, a := range args {
			s, err := c.stringValue(a)
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		}
		return b.String(), nil
	case "count":
		if len(args) != 1 {
			return "", fmt.Errorf("count() takes one argument")
		}
		nodes, err := c.selectNodes(args[0])
		if err != nil {
			return "", err
		}
		return strconv.Itoa(len(nodes)), nil
	}
	return "", fmt.Errorf("unsupported function %s()", name)
}

// =============================================================================
// BOOLEAN EXPRESSIONS
// =============================================================================

// test evaluates a boolean expression: "or", "and", "not()", "true()",
// "false()", "=" and "!=" comparisons, or the existence of selected nodes.
func (c *context) test(expr string) (bool, error) {
	expr = strings.TrimSpace(expr)

	if parts := splitTopLevel(expr, " or "); len(parts) > 1 {
		for _, p := range parts {
			ok, err := c.test(p)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	if parts := splitTopLevel(expr, " and "); len(parts) > 1 {
		for _, p := range parts {
			ok, err := c.test(p)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}

	for _, op := range []string{"!=", "="} {
		if parts := splitTopLevel(expr, op); len(parts) == 2 {
			return c.compare(parts[0], parts[1], op == "=")
		}
	}

	if name, args, ok := functionCall(expr); ok {
		switch name {
		case "not":
			if len(args) != 1 {
				return false, fmt.Errorf("not() takes one argument")
			}
			ok, err := c.test(args[0])
			return !ok, err
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		s, err := c.callFunction(name, args)
		return s != "", err
	}

	if s, ok := literal(expr); ok {
		return s != "", nil
	}
	if isNumber(expr) {
		f, _ := strconv.ParseFloat(expr, 64)
		return f != 0, nil
	}
	if isVariable(expr) {
		v, ok := c.vars[expr[1:]]
		if !ok {
			return false, fmt.Errorf("undefined variable %s", expr)
		}
		if v.isNodes {
			return len(v.nodes) > 0, nil
		}
		return v.str != "", nil
	}

	nodes, err := c.selectNodes(expr)
	return len(nodes) > 0, err
}

// compare implements XPath general comparison: true if any pair of values
// from the two operands satisfies the operator.
func (c *context) compare(left, right string, equal bool) (bool, error) {
	lv, err := c.operandValues(left)
	if err != nil {
		return false, err
	}
	rv, err := c.operandValues(right)
	if err != nil {
		return false, err
	}
	for _, l := range lv {
		for _, r := range rv {
			if (l == r) == equal {
				return true, nil
			}
		}
	}
	return false, nil
}

func (c *context) operandValues(expr string) ([]string, error) {
	expr = strings.TrimSpace(expr)
	if s, ok := literal(expr); ok {
		return []string{s}, nil
	}
	if _, _, ok := functionCall(expr); ok {
		s, err := c.stringValue(expr)
		return []string{s}, err
	}
	if isNumber(expr) {
		return []string{expr}, nil
	}
	if isVariable(expr) {
		v, ok := c.vars[expr[1:]]
		if !ok {
			return nil, fmt.Errorf("undefined variable %s", expr)
		}
		if !v.isNodes {
			return []string{v.str}, nil
		}
		return lo.Map(v.nodes, func(n node, _ int) string { return n.stringValue() }), nil
	}
	nodes, err := c.selectNodes(expr)
	if err != nil {
		return nil, err
	}
	return lo.Map(nodes, func(n node, _ int) string { return n.stringValue() }), nil
}

// =============================================================================
// ATTRIBUTE VALUE TEMPLATES
// =============================================================================

// avt expands {expr} segments in a literal attribute value. "{{" and "}}"
// stand for literal braces.
func (c *context) avt(s string) (string, error) {
	if !strings.ContainsAny(s, "{}") {
		return s, nil
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], "{{"), strings.HasPrefix(s[i:], "}}"):
			b.WriteByte(s[i])
			i++
		case s[i] == '{':
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated attribute value template %q", s)
			}
			v, err := c.stringValue(s[i+1 : i+end])
			if err != nil {
				return "", err
			}
			b.WriteString(v)
			i += end
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}

// =============================================================================
// LEXICAL HELPERS
// =============================================================================

func literal(expr string) (string, bool) {
	if len(expr) >= 2 {
		q := expr[0]
		if (q == '\'' || q == '"') && expr[len(expr)-1] == q && !strings.ContainsRune(expr[1:len(expr)-1], rune(q)) {
			return expr[1 : len(expr)-1], true
		}
	}
	return "", false
}

// functionCall splits "name(arg, arg)" into its name and arguments. Node
// tests such as text() and node() are not function calls.
func functionCall(expr string) (string, []string, bool) {
	open := strings.IndexByte(expr, '(')
	if open <= 0 || !strings.HasSuffix(expr, ")") {
		return "", nil, false
	}
	name := expr[:open]
	if strings.ContainsAny(name, "/@[$ |") {
		return "", nil, false
	}
	switch name {
	case "node", "text", "comment", "processing-instruction":
		return "", nil, false
	}

	// The closing parenthesis must match the opening one.
	if closing(expr, open) != len(expr)-1 {
		return "", nil, false
	}
	inner := strings.TrimSpace(expr[open+1 : len(expr)-1])
	if inner == "" {
		return name, nil, true
	}
	args := lo.Map(splitTopLevel(inner, ","), func(a string, _ int) string {
		return strings.TrimSpace(a)
	})
	return name, args, true
}

// closing returns the index of the parenthesis or bracket closing the one
// at open, or -1.
func closing(s string, open int) int {
	left, right := byte('('), byte(')')
	if s[open] == '[' {
		left, right = '[', ']'
	}

	var (
		depth int
		quote byte
	)
	for i := open; i < len(s); i++ {
		switch c := s[i]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == left:
			depth++
		case c == right:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// isVariable reports whether expr is a bare variable reference.
func isVariable(expr string) bool {
	return strings.HasPrefix(expr, "$") && !strings.ContainsAny(expr, "/[|")
}

func isNumber(expr string) bool {
	if expr == "" || !strings.ContainsAny(expr[:1], "0123456789.-+") {
		return false
	}
	_, err := strconv.ParseFloat(expr, 64)
	return err == nil
}
