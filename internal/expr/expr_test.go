package expr

import "testing"

func TestEvalBasics(t *testing.T) {
	cases := []struct {
		name string
		src  string
		env  map[string]any
		want bool
	}{
		{"equality true", `include_tests == true`, map[string]any{"include_tests": true}, true},
		{"equality false", `include_tests == true`, map[string]any{"include_tests": false}, false},
		{"not equal", `framework != "express"`, map[string]any{"framework": "fastify"}, true},
		{"and", `a && b`, map[string]any{"a": true, "b": true}, true},
		{"or short circuit", `a || b`, map[string]any{"a": true, "b": false}, true},
		{"negation", `!a`, map[string]any{"a": false}, true},
		{"membership array", `"x" in ["x", "y"]`, nil, true},
		{"membership string", `"js" in framework`, map[string]any{"framework": "nodejs"}, true},
		{"numeric compare", `count > 3`, map[string]any{"count": 5.0}, true},
		{"string concat in compare", `prefix + name == "srv-api"`, map[string]any{"prefix": "srv-", "name": "api"}, true},
		{"length", `length(items) > 0`, map[string]any{"items": []any{"a"}}, true},
		{"empty", `empty(items)`, map[string]any{"items": []any{}}, true},
		{"startsWith", `startsWith(name, "user")`, map[string]any{"name": "userAPI"}, true},
		{"endsWith", `endsWith(name, "API")`, map[string]any{"name": "userAPI"}, true},
		{"parens", `(a == true) && (b == false)`, map[string]any{"a": true, "b": false}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := Parse(tc.src)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tc.src, err)
			}
			got, err := e.Eval(tc.env)
			if err != nil {
				t.Fatalf("Eval(%q) error: %v", tc.src, err)
			}
			if got != tc.want {
				t.Errorf("Eval(%q) = %v, want %v", tc.src, got, tc.want)
			}
		})
	}
}

func TestParseRejectsNonWhitelistedCall(t *testing.T) {
	_, err := Parse(`exec("rm -rf /")`)
	if err == nil {
		t.Fatal("expected parse error for non-whitelisted function call")
	}
}

func TestParseRejectsTrailingGarbage(t *testing.T) {
	_, err := Parse(`true true`)
	if err == nil {
		t.Fatal("expected parse error for trailing tokens")
	}
}

func TestEvalUnknownVariableReference(t *testing.T) {
	e, err := Parse(`missing == true`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if _, err := e.Eval(map[string]any{}); err == nil {
		t.Fatal("expected eval error for unknown variable")
	}
}
