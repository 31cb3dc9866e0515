package contentcache

import "testing"

func TestSettingsTypedAccessors(t *testing.T) {
	s := NewSettings(nil)
	s.entries = map[string]settingEntry{
		"nino_js_thread_count": newSettingEntry("4"),
		"nino_login_paths":     newSettingEntry("/login"),
		"nino_debug_enabled":   newSettingEntry("true"),
		"nino_bad_int":         newSettingEntry("not-a-number"),
	}

	if got := s.Int("nino_js_thread_count", 1); got != 4 {
		t.Fatalf("Int: got %d, want 4", got)
	}
	if got := s.Str("nino_login_paths", "/x"); got != "/login" {
		t.Fatalf("Str: got %q, want /login", got)
	}
	if got := s.Bool("nino_debug_enabled", false); !got {
		t.Fatal("Bool: expected true")
	}
	if got := s.Int("nino_missing", 42); got != 42 {
		t.Fatalf("Int missing key: got %d, want default 42", got)
	}
	if got := s.Int("nino_bad_int", 7); got != 7 {
		t.Fatalf("Int with unparsable value: got %d, want default 7", got)
	}
	if got := s.Str("nino_bad_int", "fallback"); got != "not-a-number" {
		t.Fatalf("Str should still return the raw string even when int parse failed, got %q", got)
	}
}

func TestNewSettingEntryParsesInt(t *testing.T) {
	e := newSettingEntry("8080")
	if !e.hasInt || e.intVal != 8080 {
		t.Fatalf("expected parsed int 8080, got %+v", e)
	}

	e2 := newSettingEntry("8080px")
	if e2.hasInt {
		t.Fatalf("expected no parsed int for non-numeric string, got %+v", e2)
	}
	if e2.str != "8080px" {
		t.Fatalf("expected raw string preserved, got %q", e2.str)
	}
}
