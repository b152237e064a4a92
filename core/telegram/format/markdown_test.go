package format

import "testing"

func TestEscapeMarkdown(t *testing.T) {
	v1, err := EscapeMarkdown("snake_case *bold* [x]", MarkdownV1)
	if err != nil {
		t.Fatal(err)
	}
	if v1 != `snake\_case \*bold\* \[x]` {
		t.Fatalf("v1 = %q", v1)
	}
	v2, err := EscapeMarkdown("1.5 (approx)!", MarkdownV2)
	if err != nil {
		t.Fatal(err)
	}
	if v2 != `1\.5 \(approx\)\!` {
		t.Fatalf("v2 = %q", v2)
	}
	if _, err := EscapeMarkdown("x", 3); err == nil {
		t.Fatal("expected error for unknown version")
	}
}
