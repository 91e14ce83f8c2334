package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

// Browser clients only POST JSON region bodies and GET the catalog.
const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type"
	corsMaxAge       = 10 * 60 // seconds
)

// allowedOrigins matches Origin headers against the configured entries.
// An entry is either a full origin ("https://maps.example.org") compared
// verbatim, or a host wildcard ("*.example.org") that accepts any strict
// subdomain on any scheme and port.
type allowedOrigins struct {
	exact    map[string]bool
	suffixes []string
}

func newAllowedOrigins(entries []string) allowedOrigins {
	a := allowedOrigins{exact: make(map[string]bool, len(entries))}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if host, ok := strings.CutPrefix(e, "*."); ok {
			a.suffixes = append(a.suffixes, "."+strings.ToLower(host))
			continue
		}
		if e != "" {
			a.exact[strings.TrimSuffix(e, "/")] = true
		}
	}
	return a
}

func (a allowedOrigins) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if a.exact[origin] {
		return true
	}
	if len(a.suffixes) == 0 {
		return false
	}
	host := originHost(origin)
	for _, suffix := range a.suffixes {
		if len(host) > len(suffix) && strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// originHost returns the lower-cased host of an Origin header, or "" when
// the value is not an absolute URL.
func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// corsMiddleware lets browser clients on the allowed origins call the API.
// Preflight requests are answered here and never reach the handlers.
func (s *Server) corsMiddleware(origins allowedOrigins) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Add("Vary", "Origin")

			switch {
			case origins.allows(origin):
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
			case origin != "":
				s.logger.Debug("origin not allowed", "origin", origin, "path", r.URL.Path)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
