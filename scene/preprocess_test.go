package scene

import "testing"

func TestPreprocessSource(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"keyword", `(box 1 1 1 :round 0.1)`, `(box 1 1 1 "__kw_round" 0.1)`},
		{"keyword in string", `(text ":round" v)`, `(text ":round" v)`},
		{"assignment", `(def x := 10)`, `(def x := 10)`},
		{"kebab case", `(ring-wrap f 2)`, `(ring_wrap f 2)`},
		{"minus", `(- 10 5)`, `(- 10 5)`},
		{"negative number", `(translate f -1 0 0)`, `(translate f -1 0 0)`},
		{"comment", `;; comment with :keyword`, `// comment with :keyword`},
		{"wallpaper string", `(wallpaper f "*442" 1)`, `(wallpaper f "*442" 1)`},
	}
	for _, test := range tests {
		got := preprocessSource(test.input)
		if got != test.expect {
			t.Errorf("%s: preprocessSource(%q) = %q, want %q", test.name, test.input, got, test.expect)
		}
	}
}
