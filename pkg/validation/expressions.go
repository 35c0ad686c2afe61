package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dukex/flowguard/pkg/models"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

const (
	exprOpen  = "{{"
	exprClose = "}}"
)

// ExpressionIssue is a problem found in one string parameter.
type ExpressionIssue struct {
	Code    string
	Message string
}

// Fragment is one {{ ... }} section of a string parameter.
type Fragment struct {
	Source string // Text between the delimiters, trimmed
	Offset int    // Byte offset of the opening delimiter
}

// SplitExpression extracts the {{ ... }} fragments of s. Braces inside quoted strings and nested
// object literals are skipped. It returns an error for unbalanced delimiters.
func SplitExpression(s string) ([]Fragment, error) {
	var fragments []Fragment

	i := 0
	for i < len(s) {
		open := strings.Index(s[i:], exprOpen)
		closeIdx := strings.Index(s[i:], exprClose)

		if open < 0 {
			if closeIdx >= 0 {
				return nil, fmt.Errorf("unexpected %q at offset %d", exprClose, i+closeIdx)
			}

			break
		}

		if closeIdx >= 0 && closeIdx < open {
			return nil, fmt.Errorf("unexpected %q at offset %d", exprClose, i+closeIdx)
		}

		start := i + open + len(exprOpen)

		end, ok := findClose(s, start)
		if !ok {
			return nil, fmt.Errorf("unclosed %q at offset %d", exprOpen, i+open)
		}

		fragments = append(fragments, Fragment{Source: strings.TrimSpace(s[start:end]), Offset: i + open})
		i = end + len(exprClose)
	}

	return fragments, nil
}

// findClose returns the index of the "}}" closing the fragment starting at start.
func findClose(s string, start int) (int, bool) {
	depth := 0

	var quote byte

	for i := start; i < len(s); i++ {
		c := s[i]

		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}

			continue
		}

		switch c {
		case '"', '\'', '`':
			quote = c
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--

				continue
			}

			if i+1 < len(s) && s[i+1] == '}' {
				return i, true
			}
		}
	}

	return 0, false
}

// ParseFragment parses an expression fragment and returns the node names it references through
// $node["Name"], $("Name") or $items("Name"). Fragments outside the expr grammar (arrow functions,
// new, statements) are accepted when their brackets balance and they do not end on an operator;
// their references are then found by scanning.
func ParseFragment(source string) ([]string, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("empty expression")
	}

	tree, err := parser.Parse(normalizeOperators(source))
	if err != nil {
		if scriptErr := checkScript(source); scriptErr != nil {
			return nil, scriptErr
		}

		return scanReferences(source), nil
	}

	collector := &referenceCollector{}
	ast.Walk(&tree.Node, collector)

	return collector.names, nil
}

var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$node\[\s*(?:"([^"]+)"|'([^']+)')\s*\]`),
	regexp.MustCompile(`\$(?:items)?\(\s*(?:"([^"]+)"|'([^']+)')`),
}

func scanReferences(source string) []string {
	var names []string

	for _, re := range referencePatterns {
		for _, m := range re.FindAllStringSubmatch(source, -1) {
			if m[1] != "" {
				names = append(names, m[1])
			} else {
				names = append(names, m[2])
			}
		}
	}

	return names
}

// checkScript rejects fragments that are not valid JavaScript either: unbalanced brackets, unterminated
// strings and dangling operators.
func checkScript(source string) error {
	var (
		stack []byte
		quote byte
	)

	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}

	for i := 0; i < len(source); i++ {
		c := source[i]

		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}

			continue
		}

		switch c {
		case '"', '\'', '`':
			quote = c
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
				return fmt.Errorf("unexpected %q at offset %d", c, i)
			}

			stack = stack[:len(stack)-1]
		}
	}

	if quote != 0 {
		return fmt.Errorf("unterminated string")
	}

	if len(stack) > 0 {
		return fmt.Errorf("unclosed %q", stack[len(stack)-1])
	}

	trimmed := strings.TrimSpace(source)
	if strings.HasSuffix(trimmed, "++") || strings.HasSuffix(trimmed, "--") {
		return nil
	}

	if last := trimmed[len(trimmed)-1]; strings.IndexByte("+-*/%=<>&|^!?:,.", last) >= 0 {
		return fmt.Errorf("expression ends with operator %q", last)
	}

	if first := trimmed[0]; strings.IndexByte("*/%=<>&|^?:,", first) >= 0 {
		return fmt.Errorf("expression starts with operator %q", first)
	}

	return nil
}

// normalizeOperators rewrites JavaScript strict equality to the equivalent expr operators.
func normalizeOperators(source string) string {
	return strings.NewReplacer("===", "==", "!==", "!=").Replace(source)
}

type referenceCollector struct {
	names []string
}

func (c *referenceCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.CallNode:
		callee, ok := n.Callee.(*ast.IdentifierNode)
		if !ok || len(n.Arguments) == 0 {
			return
		}

		if callee.Value != "$" && callee.Value != "$items" {
			return
		}

		if name, ok := n.Arguments[0].(*ast.StringNode); ok {
			c.names = append(c.names, name.Value)
		}
	case *ast.MemberNode:
		base, ok := n.Node.(*ast.IdentifierNode)
		if !ok || base.Value != "$node" {
			return
		}

		if name, ok := n.Property.(*ast.StringNode); ok {
			c.names = append(c.names, name.Value)
		}
	}
}

// checkExpressions scans every string parameter of every node.
func checkExpressions(report *models.ValidationReport, workflow *models.Workflow) {
	for _, node := range workflow.Nodes {
		target := models.FindingTarget{Kind: models.TargetNode, NodeID: node.ID}

		walkStrings(node.Parameters, nil, func(path []string, value string) {
			for _, issue := range CheckExpressionString(value, workflow) {
				severity := models.SeverityError
				fixRef := ""

				if issue.Code == models.CodeExpressionNoPrefix {
					severity = models.SeverityWarning
					fixRef = models.FixExpressionFormat
				}

				report.Add(models.Finding{
					Severity: severity,
					Code:     issue.Code,
					Target:   target,
					Path:     path,
					Field:    strings.Join(path, "."),
					FixRef:   fixRef,
					Message:  fmt.Sprintf("node %q parameter %s: %s", node.Name, strings.Join(path, "."), issue.Message),
				})
			}
		})
	}
}

// CheckExpressionString returns the expression problems of a single string value.
func CheckExpressionString(value string, workflow *models.Workflow) []ExpressionIssue {
	marked := strings.HasPrefix(value, "=")

	if !strings.Contains(value, exprOpen) && (!marked || !strings.Contains(value, exprClose)) {
		return nil
	}

	fragments, err := SplitExpression(value)
	if err != nil {
		return []ExpressionIssue{{Code: models.CodeExpressionUnbalanced, Message: err.Error()}}
	}

	var issues []ExpressionIssue

	if len(fragments) > 0 && !marked {
		issues = append(issues, ExpressionIssue{
			Code:    models.CodeExpressionNoPrefix,
			Message: "contains {{ }} but is not marked as an expression with a leading \"=\"",
		})
	}

	for _, fragment := range fragments {
		names, err := ParseFragment(fragment.Source)
		if err != nil {
			issues = append(issues, ExpressionIssue{
				Code:    models.CodeExpressionSyntax,
				Message: fmt.Sprintf("invalid expression {{ %s }}: %s", fragment.Source, firstLine(err.Error())),
			})

			continue
		}

		for _, name := range names {
			if workflow.NodeByName(name) == nil {
				issues = append(issues, ExpressionIssue{
					Code:    models.CodeExpressionReference,
					Message: "references unknown node " + strconv.Quote(name),
				})
			}
		}
	}

	return issues
}

// walkStrings calls fn for every string inside a JSON-like value, depth first, map keys sorted.
func walkStrings(value any, path []string, fn func(path []string, value string)) {
	switch v := value.(type) {
	case string:
		fn(append([]string(nil), path...), v)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		for _, k := range keys {
			walkStrings(v[k], append(path, k), fn)
		}
	case []any:
		for i, item := range v {
			walkStrings(item, append(path, strconv.Itoa(i)), fn)
		}
	case []map[string]any:
		for i, item := range v {
			walkStrings(item, append(path, strconv.Itoa(i)), fn)
		}
	case []string:
		for i, item := range v {
			walkStrings(item, append(path, strconv.Itoa(i)), fn)
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}

	return s
}
