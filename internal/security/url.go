// Package security guards outbound fetches of user-supplied URLs.
package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// ErrBlocked is wrapped by every rejection.
var ErrBlocked = errors.New("address not allowed")

// ValidateHTTPURL checks for SSRF vulnerabilities by blocking requests to internal networks.
// It rejects localhost, private IP ranges, link-local addresses, and cloud metadata endpoints.
// Hostnames are not resolved here; use DialControl for that.
func ValidateHTTPURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	// Only allow http and https schemes
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a host")
	}

	hostLower := strings.ToLower(host)
	if hostLower == "localhost" || hostLower == "localhost.localdomain" {
		return fmt.Errorf("%w: requests to localhost are not allowed", ErrBlocked)
	}

	if ip := net.ParseIP(host); ip != nil {
		return CheckIP(ip)
	}
	return nil
}

// CheckIP rejects loopback, private, link-local and unspecified addresses.
func CheckIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("%w: requests to loopback addresses are not allowed", ErrBlocked)
	case ip.IsPrivate():
		return fmt.Errorf("%w: requests to private network addresses are not allowed", ErrBlocked)
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return fmt.Errorf("%w: requests to link-local addresses are not allowed", ErrBlocked)
	case ip.IsUnspecified():
		return fmt.Errorf("%w: requests to unspecified addresses are not allowed", ErrBlocked)
	}
	return nil
}

// DialControl is a net.Dialer Control func that refuses connections to
// internal addresses after DNS resolution.
func DialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: unresolved address %q", ErrBlocked, address)
	}
	return CheckIP(ip)
}
