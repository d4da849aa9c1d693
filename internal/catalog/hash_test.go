package catalog

import "testing"

func TestQueryHashNormalizes(t *testing.T) {
	base := QueryHash("marcelo garcia butterfly guard")

	cases := []string{
		"Marcelo Garcia Butterfly Guard",
		"  marcelo   garcia\tbutterfly guard ",
		"MARCELO GARCIA BUTTERFLY GUARD",
	}
	for _, text := range cases {
		if got := QueryHash(text); got != base {
			t.Fatalf("QueryHash(%q) = %s, want %s", text, got, base)
		}
	}

	if QueryHash("marcelo garcia x guard") == base {
		t.Fatal("distinct queries must not collide")
	}
	if len(base) != 16 {
		t.Fatalf("hash length = %d, want 16", len(base))
	}
}
