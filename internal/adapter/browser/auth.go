package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/logger"
)

// DefaultSetupTimeout bounds the interactive login
const DefaultSetupTimeout = 10 * time.Minute

// sessionCookies are the Google cookies that mark a signed-in profile
var sessionCookies = mapset.NewSet(
	"SID", "HSID", "SSID", "APISID", "SAPISID", "__Secure-1PSID", "__Secure-3PSID",
)

// AuthStatus describes the login state of a browser profile
type AuthStatus struct {
	Authenticated      bool   `json:"authenticated" yaml:"authenticated"`
	Profile            string `json:"profile" yaml:"profile"`
	ProfileDir         string `json:"profileDir" yaml:"profileDir"`
	SessionCookieCount int    `json:"criticalCookieCount" yaml:"criticalCookieCount"`
	CurrentURL         string `json:"currentUrl,omitempty" yaml:"currentUrl,omitempty"`
	Message            string `json:"message,omitempty" yaml:"message,omitempty"`
}

// CountSessionCookies counts the names that belong to a Google session.
// Only names are inspected; cookie values never leave the browser.
func CountSessionCookies(names []string) int {
	n := 0
	for _, name := range names {
		if sessionCookies.Contains(name) {
			n++
		}
	}
	return n
}

func (s *Session) sessionCookieCount() int {
	cookies, err := s.browser.GetCookies()
	if err != nil {
		logger.Get().Warn("failed to read cookies", "error", err)
		return 0
	}
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	return CountSessionCookies(names)
}

// Status loads the home page and reports whether the profile is signed in
func (s *Session) Status(ctx context.Context, profile string) (AuthStatus, error) {
	if err := s.Goto(ctx, HomeURL); err != nil {
		return AuthStatus{}, err
	}
	st := AuthStatus{
		Profile:            profile,
		ProfileDir:         s.opts.ProfileDir,
		SessionCookieCount: s.sessionCookieCount(),
		CurrentURL:         s.CurrentURL(),
	}
	st.Authenticated = st.SessionCookieCount > 0 && !IsLoginURL(st.CurrentURL)
	return st, nil
}

// Setup opens the Google sign-in page and waits for the user to land back
// on NotebookLM. The session must run with a visible browser.
func (s *Session) Setup(ctx context.Context, profile string, timeout time.Duration) (AuthStatus, error) {
	if timeout <= 0 {
		timeout = DefaultSetupTimeout
	}
	if err := s.Goto(ctx, SignInURL); err != nil {
		return AuthStatus{}, err
	}

	st := AuthStatus{Profile: profile, ProfileDir: s.opts.ProfileDir}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		url := s.CurrentURL()
		if strings.HasPrefix(url, HomeURL) && !IsLoginURL(url) {
			if err := pause(ctx, 1500*time.Millisecond); err != nil {
				return st, err
			}
			st.CurrentURL = url
			st.SessionCookieCount = s.sessionCookieCount()
			st.Authenticated = st.SessionCookieCount > 0
			st.Message = "Authentication appears complete."
			return st, nil
		}
		if err := pause(ctx, time.Second); err != nil {
			return st, err
		}
	}

	st.Message = fmt.Sprintf("Timed out waiting for login after %s. Run setup again and complete login in the opened browser.", timeout)
	return st, fmt.Errorf("%w: login not completed", domain.ErrTimeout)
}

// ProfileInfo is one browser profile directory
type ProfileInfo struct {
	Profile    string `json:"profile" yaml:"profile"`
	ProfileDir string `json:"profileDir" yaml:"profileDir"`
	Exists     bool   `json:"exists" yaml:"exists"`
}

// ListProfiles returns "default" first, then every directory under root
func ListProfiles(root string) ([]ProfileInfo, error) {
	defaultDir := filepath.Join(root, "default")
	_, err := os.Stat(defaultDir)
	profiles := []ProfileInfo{{Profile: "default", ProfileDir: defaultDir, Exists: err == nil}}

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return profiles, nil
		}
		return nil, &domain.IoError{Path: root, Err: err}
	}

	names := []string{}
	for _, e := range entries {
		if e.IsDir() && e.Name() != "default" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		profiles = append(profiles, ProfileInfo{Profile: name, ProfileDir: filepath.Join(root, name), Exists: true})
	}
	return profiles, nil
}

// ClearProfiles deletes the named profile directories under root and
// returns the names that existed
func ClearProfiles(root string, names ...string) ([]string, error) {
	cleared := []string{}
	for _, name := range names {
		dir := filepath.Join(root, name)
		if rel, err := filepath.Rel(root, dir); err != nil || strings.HasPrefix(rel, "..") || rel == "." {
			return cleared, domain.Validationf("invalid profile name: %s", name)
		}
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return cleared, &domain.IoError{Path: dir, Err: err}
		}
		cleared = append(cleared, name)
	}
	sort.Strings(cleared)
	return cleared, nil
}
