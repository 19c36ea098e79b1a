// Package uricodec turns playground source text into query-string tokens and back.
//
// Encoding follows the browser's encodeURIComponent with the sub-delimiters
// it leaves alone (! ' ( ) * .) escaped as well, so a token survives being
// pasted into chat clients and markdown links untouched.
package uricodec

import (
	"errors"
	"net/url"
	"strings"
	"unicode/utf8"
)

// ErrInvalid is returned when a token holds a malformed escape or decodes to invalid UTF-8.
var ErrInvalid = errors.New("uricodec: invalid token")

const upperhex = "0123456789ABCDEF"

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-' || c == '_' || c == '~':
		return true
	}
	return false
}

// Encode escapes every byte of s outside [A-Za-z0-9_~-] as %XX.
func Encode(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

// Decode reverses Encode. A '+' is kept literally, as decodeURIComponent does.
func Decode(token string) (string, error) {
	s, err := url.PathUnescape(token)
	if err != nil {
		return "", errors.Join(ErrInvalid, err)
	}
	if !utf8.ValidString(s) {
		return "", ErrInvalid
	}
	return s, nil
}

// ShareLink builds {origin}{base}{route}?code={token}.
// base and route are joined with exactly one slash between the segments.
func ShareLink(origin, base, route, text string) string {
	origin = strings.TrimRight(origin, "/")
	return origin + JoinPath(base, route) + "?code=" + Encode(text)
}

// QueryLink builds a playground link carrying a single parameter, used for
// the "load notebook/script from URL" prompts.
func QueryLink(base, route, key, value string) string {
	return JoinPath(base, route) + "?" + key + "=" + Encode(value)
}

// JoinPath joins URL path segments so the result starts and ends with '/'.
func JoinPath(parts ...string) string {
	var segs []string
	for _, p := range parts {
		for _, s := range strings.Split(p, "/") {
			if s != "" {
				segs = append(segs, s)
			}
		}
	}
	if len(segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(segs, "/") + "/"
}

// CanonicalQuery normalizes a raw query string (with or without the leading '?')
// so that parameter order and escaping differences compare equal.
// Unparseable input is returned trimmed, which still compares by identity.
func CanonicalQuery(raw string) string {
	raw = strings.TrimPrefix(raw, "?")
	values, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	return values.Encode()
}
