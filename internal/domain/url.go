package domain

import (
	"net"
	"net/url"
	"path"
	"strings"
)

var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"dclid":   {},
	"msclkid": {},
	"mc_cid":  {},
	"mc_eid":  {},
	"igshid":  {},
	"_ga":     {},
	"_hsenc":  {},
	"_hsmi":   {},
	"ref_src": {},
}

// NormalizeURL returns the canonical form used as the article dedup and cache key:
// lower-case scheme and host, default port dropped, fragment dropped, trailing slash
// removed, tracking parameters stripped and the remaining query sorted.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", Invalid("empty url")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", Invalid("parse url %q: %v", raw, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", Invalid("unsupported url scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", Invalid("url %q has no host", raw)
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}

	u.Fragment = ""
	u.RawFragment = ""

	if escaped := u.EscapedPath(); escaped != "" {
		escaped = strings.TrimSuffix(path.Clean(upperEscapes(escaped)), "/")
		unescaped, err := url.PathUnescape(escaped)
		if err != nil {
			return "", Invalid("url %q has a malformed path: %v", raw, err)
		}
		u.Path, u.RawPath = unescaped, escaped
	}

	u.RawQuery = canonicalQuery(u.RawQuery)
	u.ForceQuery = false

	return u.String(), nil
}

// canonicalQuery drops tracking parameters. A query that parses cleanly is re-encoded
// in sorted key order; anything else (semicolon separators, bad escapes) keeps its
// original bytes and order, since re-encoding would lose or merge parameters.
func canonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}
	if query, err := url.ParseQuery(raw); err == nil {
		for key := range query {
			if isTrackingParam(key) {
				query.Del(key)
			}
		}
		return query.Encode()
	}

	kept := make([]string, 0, strings.Count(raw, "&")+1)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}
		if isTrackingParam(key) {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	_, ok := trackingParams[lower]
	return ok || strings.HasPrefix(lower, "utm_")
}

// upperEscapes upper-cases the hex digits of percent escapes so %2f and %2F compare equal.
func upperEscapes(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	b := []byte(s)
	for i := 0; i+2 < len(b); i++ {
		if b[i] == '%' {
			b[i+1] = upperHex(b[i+1])
			b[i+2] = upperHex(b[i+2])
			i += 2
		}
	}
	return string(b)
}

func upperHex(c byte) byte {
	if c >= 'a' && c <= 'f' {
		return c - 'a' + 'A'
	}
	return c
}
