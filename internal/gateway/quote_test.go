package gateway

import "testing"

func TestQuoteIdent(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"users", `"users"`},
		{`we"ird`, `"we""ird"`},
		{"order", `"order"`},
		{"has space", `"has space"`},
		{"dotted.name", `"dotted.name"`},
	}
	for _, c := range cases {
		if got := QuoteIdent(c.name); got != c.want {
			t.Errorf("QuoteIdent(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestQuoteQualified(t *testing.T) {
	got := QuoteQualified("public", `we"ird`)
	want := `"public"."we""ird"`
	if got != want {
		t.Errorf("QuoteQualified = %q, want %q", got, want)
	}
}

func TestFingerprintExpr(t *testing.T) {
	got := fingerprintExpr([]string{"id"})
	want := `COALESCE(t."id"::text, '')`
	if got != want {
		t.Errorf("fingerprintExpr(single) = %q, want %q", got, want)
	}

	got = fingerprintExpr([]string{"tenant_id", "id"})
	want = `COALESCE(t."tenant_id"::text, '') || '::' || COALESCE(t."id"::text, '')`
	if got != want {
		t.Errorf("fingerprintExpr(composite) = %q, want %q", got, want)
	}
}
