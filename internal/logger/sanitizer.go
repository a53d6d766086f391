package logger

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Sanitizer masks credentials and personal paths before a record is written.
//
// Messages are rewritten by pattern. Arguments are masked by key only: a
// value under a harmless key such as "url" is passed through even when it
// embeds a secret, so callers must not log raw cookie jars under such keys.
type Sanitizer struct {
	mu    sync.RWMutex
	rules []SanitizeRule
}

// SanitizeRule rewrites every match of Pattern with Replacement
type SanitizeRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

func rule(pattern, replacement string) SanitizeRule {
	return SanitizeRule{Pattern: regexp.MustCompile(pattern), Replacement: replacement}
}

// sessionRules cover what a browser driven against a Google web app can leak
var sessionRules = []SanitizeRule{
	// 先遮整個 Cookie header，再遮單一 Google session cookie
	rule(`(?i)(\bcookie:\s*)[^\r\n]+`, "${1}***"),
	rule(`\b(__Secure-[13]P(?:SID\w*|APISID)|SAPISID|APISID|HSID|SSID|SID)=[^;\s]+`, "$1=***"),
	rule(`(?i)\bbearer\s+\S+`, "bearer ***"),
}

// credentialRules 密碼與 token 相關
var credentialRules = []SanitizeRule{
	rule(`(?i)\b(password|passwd|pwd)=\S+`, "$1=***"),
	rule(`(?i)\btoken=\S+`, "token=***"),
	rule(`(?i)\bapi[_-]?key=\S+`, "api_key=***"),
}

// personalRules hide the account owner: home directories hold the browser
// profiles and the data dir, and the signed-in email shows up in page text
var personalRules = []SanitizeRule{
	// Windows 使用者路徑 (支援所有磁碟機與 UNC，不區分大小寫)
	rule(`(?i)[A-Z]:\\Users\\[^\\]+`, `***:\Users\***`),
	rule(`(?i)\\\\[^\\]+\\[^\\]+\\Users\\[^\\]+`, `\\***\***\Users\***`),
	// Unix 與 macOS 家目錄
	rule(`/home/[^/]+`, "/home/***"),
	rule(`/Users/[^/]+`, "/Users/***"),
	// Email 部分遮蔽
	rule(`([a-zA-Z0-9._%+-]{1,3})[a-zA-Z0-9._%+-]*@`, "$1***@"),
}

// sensitiveKeyParts mark an argument key as sensitive when contained in it
var sensitiveKeyParts = []string{
	"password", "passwd", "pwd",
	"token", "secret", "api_key", "apikey",
	"credential", "auth", "cookie", "session",
}

// sensitiveKeys must match exactly; as substrings they would hit "side" or "inside"
var sensitiveKeys = map[string]bool{
	"sid": true, "hsid": true, "ssid": true, "apisid": true, "sapisid": true,
}

// NewSanitizer returns a sanitizer with the session, credential and personal rules
func NewSanitizer() *Sanitizer {
	rules := make([]SanitizeRule, 0, len(sessionRules)+len(credentialRules)+len(personalRules))
	rules = append(rules, sessionRules...)
	rules = append(rules, credentialRules...)
	rules = append(rules, personalRules...)
	return &Sanitizer{rules: rules}
}

// Sanitize applies every rule to input in order
func (s *Sanitizer) Sanitize(input string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rules {
		input = r.Pattern.ReplaceAllString(input, r.Replacement)
	}
	return input
}

// SanitizeArgs returns a copy of slog-style key/value args with the values
// of sensitive keys masked. Non-string values under such keys are kept.
func (s *Sanitizer) SanitizeArgs(args []any) []any {
	if len(args) == 0 {
		return args
	}

	out := make([]any, len(args))
	copy(out, args)

	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok || !s.isSensitiveKey(key) {
			continue
		}
		switch v := out[i+1].(type) {
		case string:
			out[i+1] = s.maskValue(v)
		case error:
			out[i+1] = s.maskValue(v.Error())
		case []string:
			masked := make([]string, len(v))
			for j, item := range v {
				masked[j] = s.maskValue(item)
			}
			out[i+1] = masked
		}
	}
	return out
}

func (s *Sanitizer) isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	if sensitiveKeys[lower] {
		return true
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// maskValue keeps the first character, and the last one of values longer than 8
func (s *Sanitizer) maskValue(value string) string {
	switch {
	case len(value) <= 2:
		return "***"
	case len(value) <= 8:
		return value[:1] + "***"
	default:
		return value[:1] + "***" + value[len(value)-1:]
	}
}

// AddRule 新增自訂過濾規則，於內建規則之後套用
func (s *Sanitizer) AddRule(pattern string, replacement string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, SanitizeRule{Pattern: re, Replacement: replacement})
	return nil
}
