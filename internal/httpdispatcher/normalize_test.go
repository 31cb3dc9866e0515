package httpdispatcher

import "testing"

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/Foo/Bar":       "foo/bar",
		"//a///b__c..d/": "a/b_c.d",
		"/./a/":          "a",
		"a//./b":         "a/b",
		"":               "",
	}
	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizePathIdempotent(t *testing.T) {
	inputs := []string{"/Foo//Bar/", "a/./b", "/.hidden/", "MiXeD__Case.."}
	for _, in := range inputs {
		once := NormalizePath(in)
		twice := NormalizePath(once)
		if once != twice {
			t.Errorf("NormalizePath not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestNormalizePathRefusesRelativeEscape(t *testing.T) {
	got := NormalizePath("/a/../b")
	if got == "a/../b" {
		t.Fatalf("expected relative escape segment to be collapsed, got %q", got)
	}
}
