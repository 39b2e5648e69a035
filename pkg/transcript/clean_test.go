package transcript

import "testing"

func TestCleanStripsNoiseAnnotations(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"hello [BLANK_AUDIO] world", "hello  world"},
		{"(wind) (rain) ok", "  ok"},
		{"abc [open", "abc [open"},
		{"[BLANK_AUDIO]", ""},
		{"", ""},
		{"no annotations here", "no annotations here"},
		{"(music", "(music"},
		{"mixed [a] and (b) done", "mixed  and  done"},
	}
	for _, tc := range cases {
		if got := Clean(tc.in); got != tc.want {
			t.Fatalf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	inputs := []string{
		"hello [BLANK_AUDIO] world",
		"(wind) (rain) ok",
		"abc [open",
		"plain text",
	}
	for _, in := range inputs {
		once := Clean(in)
		if twice := Clean(once); twice != once {
			t.Fatalf("Clean not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestJoin(t *testing.T) {
	cases := []struct {
		confirmed string
		partial   string
		want      string
	}{
		{"", "", ""},
		{"hello", "", "hello"},
		{"", "world", "world"},
		{"hello", "world", "hello world"},
	}
	for _, tc := range cases {
		if got := Join(tc.confirmed, tc.partial); got != tc.want {
			t.Fatalf("Join(%q, %q) = %q, want %q", tc.confirmed, tc.partial, got, tc.want)
		}
	}
}
