package logger

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizer_Sanitize(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"password", "login with password=secret123", "login with password=***"},
		{"token", "callback token=abc123xyz", "callback token=***"},
		{"bearer", "Authorization: Bearer eyJhbGc...", "Authorization: bearer ***"},
		{"cookie header", "request failed\nCookie: NID=1; OTZ=2\nstatus 302", "request failed\nCookie: ***\nstatus 302"},
		{"windows profile dir", `profile at C:\Users\john\AppData\nbsync\profiles\default`, `profile at ***:\Users\***\AppData\nbsync\profiles\default`},
		{"unix data dir", "ledger at /home/john/.config/nbsync/source_state.json", "ledger at /home/***/.config/nbsync/source_state.json"},
		{"mac data dir", "artifacts in /Users/john/nbsync/artifacts", "artifacts in /Users/***/nbsync/artifacts"},
		{"signed-in email", "signed in as john.doe@example.com", "signed in as joh***@example.com"},
		{"plain", "3 sources uploaded", "3 sources uploaded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizer_SessionCookies(t *testing.T) {
	s := NewSanitizer()

	got := s.Sanitize("cookies: SID=abc123; __Secure-1PSID=zzz; SAPISID=qqq; NID=keep")

	for _, leaked := range []string{"abc123", "zzz", "qqq"} {
		if strings.Contains(got, leaked) {
			t.Errorf("cookie value %q leaked: %s", leaked, got)
		}
	}
	if !strings.Contains(got, "NID=keep") {
		t.Errorf("unrelated cookie should be kept: %s", got)
	}
}

func TestSanitizer_SanitizeArgs(t *testing.T) {
	s := NewSanitizer()

	args := []any{
		"title", "notes.md",
		"password", "secret123",
		"cookie_header", "SID=abcdefghij",
		"SAPISID", "abcdefghijk",
		"side", "left",
		"auth_error", errors.New("redirected"),
		"cookies", []string{"abcdefghij", "xy"},
		"msg", "token=abc123",
		"size", 1024,
	}
	got := s.SanitizeArgs(args)

	if len(got) != len(args) {
		t.Fatalf("len = %d, want %d", len(got), len(args))
	}
	if args[3] != "secret123" {
		t.Error("input slice must not be modified")
	}

	want := map[int]any{
		1:  "notes.md",
		3:  "s***3",
		5:  "S***j",
		7:  "a***k",
		9:  "left",
		11: "r***d",
		15: "token=abc123", // "msg" 不是敏感鍵，值不會被遮罩
		17: 1024,
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("%v = %v, want %v", got[i-1], got[i], w)
		}
	}
	masked, ok := got[13].([]string)
	if !ok || masked[0] != "a***j" || masked[1] != "***" {
		t.Errorf("cookies = %v, want each element masked", got[13])
	}
}

func TestSanitizer_AddRule(t *testing.T) {
	s := NewSanitizer()

	if err := s.AddRule(`authuser=\d+`, "authuser=*"); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}
	if err := s.AddRule(`(`, "x"); err == nil {
		t.Error("invalid pattern should be rejected")
	}

	got := s.Sanitize("opened https://notebooklm.google.com/?authuser=2")
	if got != "opened https://notebooklm.google.com/?authuser=*" {
		t.Errorf("Sanitize() = %q", got)
	}
}

func TestSanitizer_MaskValue(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		input string
		want  string
	}{
		{"ab", "***"},
		{"abc", "a***"},
		{"abcdefgh", "a***"},
		{"abcdefghi", "a***i"},
		{"verylongpassword", "v***d"},
	}

	for _, tt := range tests {
		if got := s.maskValue(tt.input); got != tt.want {
			t.Errorf("maskValue(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitizer_IsSensitiveKey(t *testing.T) {
	s := NewSanitizer()

	tests := map[string]bool{
		"password":      true,
		"user_password": true,
		"PASSWORD":      true,
		"api_key":       true,
		"cookie":        true,
		"session_id":    true,
		"SID":           true,
		"hsid":          true,
		"inside":        false,
		"username":      false,
		"notebook":      false,
	}

	for key, want := range tests {
		if got := s.isSensitiveKey(key); got != want {
			t.Errorf("isSensitiveKey(%q) = %v, want %v", key, got, want)
		}
	}
}
