package sqlguard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	contractx "github.com/chronicai/chronicai/agent/contract"
	policyx "github.com/chronicai/chronicai/agent/policy"
)

func newTestGuard(t *testing.T, yaml string) *Guard {
	t.Helper()
	path := filepath.Join(t.TempDir(), "allowed_tables.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write allow-list: %v", err)
	}
	al, err := policyx.NewAllowlist(path, time.Minute)
	if err != nil {
		t.Fatalf("allowlist: %v", err)
	}
	g, err := New(al)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	return g
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		in   string
		want string
	}{
		"code fence":        {"```sql\nSELECT 1\n```", "SELECT 1"},
		"leading comment":   {"-- note\nSELECT 1", "SELECT 1"},
		"block comment":     {"/* hint */ SELECT 1", "SELECT 1"},
		"trailing semi":     {"SELECT 1;", "SELECT 1"},
		"bom and space":     {"\ufeff  SELECT 1  ", "SELECT 1"},
		"empty after strip": {"```sql\n```", ""},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := Sanitize(tc.in); got != tc.want {
				t.Fatalf("Sanitize(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestValidateGates(t *testing.T) {
	t.Parallel()

	guard := newTestGuard(t, "allowed_tables:\n  - metrics\n  - profiles\n")

	for name, tc := range map[string]struct {
		sql  string
		kind ViolationKind
	}{
		"empty":           {"   ;  ", EmptyStatement},
		"drop":            {"DROP TABLE users;", NotReadOnly},
		"update":          {"UPDATE metrics SET x=1 WHERE user_id='a'", NotReadOnly},
		"smuggled stmt":   {"SELECT * FROM metrics WHERE user_id='a'; DELETE FROM metrics", InjectionSuspected},
		"inline comment":  {"SELECT * FROM metrics WHERE user_id='a' -- sneak", InjectionSuspected},
		"block comment":   {"SELECT * FROM metrics /* x */ WHERE user_id='a'", InjectionSuspected},
		"not allowlisted": {"SELECT * FROM secrets", TableNotAllowed},
		"join leak":       {"SELECT * FROM metrics m JOIN secrets s ON s.id = m.id WHERE m.user_id='a'", TableNotAllowed},
		"no tenant":       {"SELECT * FROM metrics", MissingTenantFilter},
		"cte alias":       {"WITH w AS (SELECT * FROM metrics WHERE user_id = 'abc') SELECT * FROM w", TableNotAllowed},
	} {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := guard.Validate(tc.sql)
			var v *Violation
			if !errors.As(err, &v) {
				t.Fatalf("expected Violation, got %v", err)
			}
			if v.Kind != tc.kind {
				t.Fatalf("kind=%s, want %s", v.Kind, tc.kind)
			}
			if !errors.Is(err, contractx.ErrPolicyViolation) {
				t.Fatal("violation must unwrap to ErrPolicyViolation")
			}
		})
	}
}

func TestValidateAccepts(t *testing.T) {
	t.Parallel()

	guard := newTestGuard(t, "allowed_tables:\n  - metrics\n  - profiles\n")

	for name, sql := range map[string]string{
		"plain select":     "SELECT * FROM metrics WHERE user_id = 'abc'",
		"schema qualified": "SELECT * FROM public.metrics WHERE user_id = 'abc'",
		"with allowlisted": "WITH recent AS (SELECT * FROM metrics WHERE user_id = 'abc') SELECT count(*) FROM profiles WHERE user_id = 'abc'",
		"fenced":           "```sql\nSELECT * FROM metrics WHERE user_id = 'abc';\n```",
		"no table refs":    "SELECT 1 WHERE 'x' = current_setting('app.user_id')",
	} {
		sql := sql
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			out, err := guard.Validate(sql)
			if err != nil {
				t.Fatalf("unexpected rejection: %v", err)
			}
			if out == "" {
				t.Fatal("sanitized statement is empty")
			}
		})
	}
}

func TestValidateFailClosedWithoutAllowlist(t *testing.T) {
	t.Parallel()

	al, err := policyx.NewAllowlist(filepath.Join(t.TempDir(), "missing.yaml"), time.Minute)
	if err != nil {
		t.Fatalf("allowlist: %v", err)
	}
	guard, err := New(al)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}

	_, err = guard.Validate("SELECT * FROM metrics WHERE user_id = 'abc'")
	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("expected Violation, got %v", err)
	}
	if v.Kind != AllowlistUnavailable {
		t.Fatalf("kind=%s, want %s", v.Kind, AllowlistUnavailable)
	}
}
