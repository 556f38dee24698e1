package expressions

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Strategy resolves one syntactic form of source reference.
type Strategy interface {
	Name() string
	Match(ref string) bool
	Resolve(ref string, scope Scope) string
}

// Resolver turns a step's source references into strings. Strategies are
// tried in order and the first match wins. Resolution never fails: missing
// values degrade to "" or to the reference text itself.
type Resolver struct {
	strategies []Strategy
}

// NewResolver creates a Resolver. With no strategies it uses the default
// order: template, dotted path, then key-or-literal.
func NewResolver(strategies ...Strategy) *Resolver {
	if len(strategies) == 0 {
		strategies = []Strategy{TemplateStrategy{}, PathStrategy{}, LiteralStrategy{}}
	}
	return &Resolver{strategies: strategies}
}

var defaultResolver = NewResolver()

// Resolve resolves ref with the default strategy order.
func Resolve(ref string, scope Scope) string {
	return defaultResolver.Resolve(ref, scope)
}

// Resolve returns the string value ref points at within scope.
func (r *Resolver) Resolve(ref string, scope Scope) string {
	if ref == "" {
		return ""
	}
	for _, s := range r.strategies {
		if s.Match(ref) {
			return s.Resolve(ref, scope)
		}
	}
	return ref
}

var templateToken = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// TemplateStrategy substitutes every {{name}} token with the stringified
// scope value. Tokens with no value are left verbatim. Substitution is a
// single pass: substituted text is not rescanned.
type TemplateStrategy struct{}

func (TemplateStrategy) Name() string { return "template" }

func (TemplateStrategy) Match(ref string) bool {
	return templateToken.MatchString(ref)
}

func (TemplateStrategy) Resolve(ref string, scope Scope) string {
	return templateToken.ReplaceAllStringFunc(ref, func(tok string) string {
		name := strings.TrimSpace(templateToken.FindStringSubmatch(tok)[1])
		if v, ok := scope.Get(name); ok {
			return Stringify(v)
		}
		if strings.Contains(name, ".") {
			if v, ok := scope.Lookup(name); ok {
				return Stringify(v)
			}
		}
		return tok
	})
}

// PathStrategy walks a dotted path such as "stepId.outputKey" through nested
// maps and slices. A missing or null segment yields "".
type PathStrategy struct{}

func (PathStrategy) Name() string { return "path" }

func (PathStrategy) Match(ref string) bool {
	return strings.Contains(ref, ".")
}

func (PathStrategy) Resolve(ref string, scope Scope) string {
	v, _ := scope.Lookup(ref)
	return Stringify(v)
}

// LiteralStrategy looks ref up as a top-level key and falls back to the
// reference text itself, which is then treated as a literal value.
type LiteralStrategy struct{}

func (LiteralStrategy) Name() string { return "literal" }

func (LiteralStrategy) Match(string) bool { return true }

func (LiteralStrategy) Resolve(ref string, scope Scope) string {
	if v, ok := scope.Get(ref); ok {
		return Stringify(v)
	}
	return ref
}

// walk follows path segments from root through nested maps and slices.
// ok is false when a segment is missing or null.
func walk(root any, parts []string) (any, bool) {
	cur := root
	if cur == nil {
		return nil, false
	}
	for _, part := range parts {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[part]
		case map[string]string:
			s, found := node[part]
			if !found {
				return nil, false
			}
			cur = s
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
		if cur == nil {
			return nil, false
		}
	}
	return cur, true
}

var substituteToken = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}|\$\{\s*([^{}]+?)\s*\}`)

// Substitute replaces every {{key}} and ${key} token in text whose key is in
// vars. Whitespace inside the braces is ignored, as in TemplateStrategy.
// Unknown tokens are left verbatim and replaced text is not rescanned.
func Substitute(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	return substituteToken.ReplaceAllStringFunc(text, func(tok string) string {
		m := substituteToken.FindStringSubmatch(tok)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if v, ok := vars[strings.TrimSpace(name)]; ok {
			return v
		}
		return tok
	})
}

// Stringify renders a context value as text: strings as-is, nil as "",
// scalars in their natural form, and maps or slices as compact JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	case map[string]any, []any, map[string]string, []string:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
