package offline

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Scope decides which requests the worker intercepts: same-origin requests
// whose URL does not name the worker script and whose path matches none of
// the bypass globs.
type Scope struct {
	origin     *url.URL
	scriptName string
	bypass     []string
}

// NewScope builds a scope. An empty origin means "the host the request was
// addressed to".
func NewScope(origin, scriptURL string, bypass []string) (*Scope, error) {
	s := &Scope{scriptName: path.Base(scriptURL)}
	if s.scriptName == "." || s.scriptName == "/" {
		return nil, fmt.Errorf("invalid worker script url %q", scriptURL)
	}

	if origin != "" {
		u, err := url.Parse(origin)
		if err != nil {
			return nil, fmt.Errorf("parse origin: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("origin %q must be absolute", origin)
		}
		s.origin = &url.URL{Scheme: strings.ToLower(u.Scheme), Host: strings.ToLower(u.Host)}
	}

	for _, pattern := range bypass {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid bypass pattern %q", pattern)
		}
		s.bypass = append(s.bypass, pattern)
	}
	return s, nil
}

// Intercepts reports whether the worker handles req.
func (s *Scope) Intercepts(req *http.Request) bool {
	if !s.SameOrigin(req) {
		return false
	}
	if strings.Contains(RequestURL(req).String(), s.scriptName) {
		return false
	}
	for _, pattern := range s.bypass {
		if ok, _ := doublestar.Match(pattern, req.URL.Path); ok {
			return false
		}
	}
	return true
}

// SameOrigin reports whether req targets the scope's origin.
func (s *Scope) SameOrigin(req *http.Request) bool {
	target := RequestURL(req)
	if s.origin == nil {
		// Absolute-form requests for another host are cross-origin.
		return !req.URL.IsAbs() || req.Host == "" || strings.EqualFold(req.URL.Host, req.Host)
	}
	return strings.EqualFold(target.Scheme, s.origin.Scheme) &&
		hostPort(target) == hostPort(s.origin)
}

// RequestURL returns the absolute URL of req.
func RequestURL(req *http.Request) *url.URL {
	if req.URL.IsAbs() {
		return req.URL
	}
	u := *req.URL
	u.Scheme = "http"
	if req.TLS != nil || strings.EqualFold(req.Header.Get("X-Forwarded-Proto"), "https") {
		u.Scheme = "https"
	}
	u.Host = req.Host
	return &u
}

func hostPort(u *url.URL) string {
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		host = u.Host
		switch strings.ToLower(u.Scheme) {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}
	return strings.ToLower(host) + ":" + port
}
