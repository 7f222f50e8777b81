package transport

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// OriginAllowed reports whether the request's Origin header matches an entry
// of allowed. Entries may be a full origin ("https://a.example"), a hostname,
// a host:port pair, or a "*.example.com" wildcard that matches subdomains only.
// Requests without an Origin header are accepted only when allowNoOrigin is set.
func OriginAllowed(r *http.Request, allowed []string, allowNoOrigin bool) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return allowNoOrigin
	}
	var host, hostname string
	if u, err := url.Parse(origin); err == nil {
		host = strings.ToLower(u.Host)
		hostname = strings.ToLower(u.Hostname())
	}
	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case entry == "":
		case strings.Contains(entry, "://"):
			if strings.EqualFold(origin, entry) {
				return true
			}
		case strings.HasPrefix(entry, "*."):
			if hostname != "" && strings.HasSuffix(hostname, entry[1:]) {
				return true
			}
		case isHostPort(entry):
			if host == entry {
				return true
			}
		case hostname == entry || origin == entry:
			return true
		}
	}
	return false
}

// OriginChecker returns an UpgraderOptions.CheckOrigin func. An empty
// allow-list accepts every request.
func OriginChecker(allowed []string, allowNoOrigin bool) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool { return OriginAllowed(r, allowed, allowNoOrigin) }
}

func isHostPort(s string) bool {
	_, _, err := net.SplitHostPort(s)
	return err == nil
}
