package expressions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

func testScope() Scope {
	s := NewScope(map[string]any{
		"name":  "Ada",
		"count": 3,
		"ratio": 0.5,
		"on":    true,
		"items": []any{"a", "b"},
		"meta":  map[string]any{"k": "v", "empty": nil},
		"loop":  "{{name}}",
	})
	s.Publish(&schema.StepSpec{ID: "s1", OutputKey: "draft"}, "draft text")
	return s
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string
	}{
		{"empty", "", ""},
		{"template", "{{name}}", "Ada"},
		{"template inline with spaces", "Hi {{ name }}!", "Hi Ada!"},
		{"template unmatched kept", "{{missing}}", "{{missing}}"},
		{"template mixed", "{{name}} and {{missing}}", "Ada and {{missing}}"},
		{"template dotted", "{{s1.draft}}", "draft text"},
		{"template not recursive", "{{loop}}", "{{name}}"},
		{"template number", "n={{count}}", "n=3"},
		{"path", "s1.draft", "draft text"},
		{"path missing leaf", "s1.nope", ""},
		{"path missing root", "ghost.value", ""},
		{"path through null", "meta.empty.deeper", ""},
		{"path index", "items.1", "b"},
		{"path index out of range", "items.9", ""},
		{"path object", "user_input.meta", `{"empty":null,"k":"v"}`},
		{"key", "name", "Ada"},
		{"key float", "ratio", "0.5"},
		{"key bool", "on", "true"},
		{"key list", "items", `["a","b"]`},
		{"literal fallback", "Write a haiku", "Write a haiku"},
	}

	s := testScope()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.ref, s))
		})
	}
}

func TestResolver_CustomStrategies(t *testing.T) {
	r := NewResolver(LiteralStrategy{})
	s := testScope()

	// Without the path strategy a dotted ref is only a key or a literal.
	assert.Equal(t, "s1.draft", r.Resolve("s1.draft", s))
	assert.Equal(t, "Ada", r.Resolve("name", s))
}

func TestResolve_UnmatchedTemplateIsIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewScope(map[string]any{
			rapid.StringMatching(`k_[a-z]{1,6}`).Draw(t, "key"): rapid.String().Draw(t, "value"),
		})
		missing := rapid.StringMatching(`m_[a-z0-9_]{1,10}`).Draw(t, "missing")
		ref := "{{" + missing + "}}"

		if got := Resolve(ref, s); got != ref {
			t.Fatalf("Resolve(%q) = %q, want unchanged", ref, got)
		}
	})
}

func TestResolve_PublishedOutputReachableByPath(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// Ids, output keys and names share one small alphabet so they collide.
		ident := rapid.SampledFrom([]string{"a", "b", "c", "output", "topic", "summary"})
		n := rapid.IntRange(1, 5).Draw(t, "steps")

		s := NewScope(map[string]any{"topic": "go", "summary": "caller"})
		want := map[string]string{}
		for i := 0; i < n; i++ {
			step := &schema.StepSpec{
				ID:        ident.Draw(t, "id"),
				OutputKey: ident.Draw(t, "outputKey"),
			}
			if rapid.Bool().Draw(t, "named") {
				step.Name = ident.Draw(t, "name")
			}
			output := rapid.String().Draw(t, "output")
			s.Publish(step, output)
			// A repeated id replaces that step's namespace entirely.
			for ref := range want {
				if strings.HasPrefix(ref, step.ID+".") {
					delete(want, ref)
				}
			}
			want[step.ID+"."+step.OutputKey] = output
		}

		for ref, output := range want {
			if got := Resolve(ref, s); got != output {
				t.Fatalf("Resolve(%q) = %q, want %q", ref, got, output)
			}
		}
	})
}

func TestSubstitute(t *testing.T) {
	got := Substitute("Say {{greeting}} to ${name}, {{name}}. {{other}}", map[string]string{
		"greeting": "hello",
		"name":     "Ada",
	})
	assert.Equal(t, "Say hello to Ada, Ada. {{other}}", got)
}

func TestSubstitute_InnerWhitespace(t *testing.T) {
	vars := map[string]string{"name": "Ada"}
	assert.Equal(t, "Ada/Ada/Ada", Substitute("{{ name }}/${ name }/{{name}}", vars))

	// The same token reads the same in a prompt template and in an input source.
	s := NewScope(map[string]any{"name": "Ada"})
	ref := "Hi {{ name }} and {{ other }}"
	assert.Equal(t, Resolve(ref, s), Substitute(ref, s.Strings()))
}

func TestSubstitute_NoRescan(t *testing.T) {
	got := Substitute("{{a}} {{b}}", map[string]string{"a": "{{b}}", "b": "B"})
	assert.Equal(t, "{{b}} B", got)
}

func TestSubstitute_GlobalReplace(t *testing.T) {
	assert.Equal(t, "x-x-x", Substitute("{{v}}-${v}-{{v}}", map[string]string{"v": "x"}))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "s", Stringify("s"))
	assert.Equal(t, "42", Stringify(42))
	assert.Equal(t, "42", Stringify(float64(42)))
	assert.Equal(t, "1.25", Stringify(1.25))
	assert.Equal(t, "false", Stringify(false))
	assert.Equal(t, `{"a":1}`, Stringify(map[string]any{"a": 1}))
	assert.Equal(t, `[1,"b"]`, Stringify([]any{1, "b"}))
}
