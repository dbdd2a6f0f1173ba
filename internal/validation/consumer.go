// Package validation provides field format checks for consumer registrations.
// These are pure format validators; cross-field rules (credential mode
// exclusivity, grant subsetting) live in the consumers service where the full
// request is in scope.
package validation

import (
	"fmt"
	"net/mail"
	"net/netip"
	"net/url"
	"strings"

	"github.com/hashicorp/go-version"
)

// MaxNameLength bounds consumer application names.
const MaxNameLength = 128

// ValidateName checks a consumer application name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("name must not have leading or trailing whitespace")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("name exceeds %d characters", MaxNameLength)
	}
	return nil
}

// ValidateVersion validates that a consumer version string is a valid
// version number (e.g. "1.0", "2.1.3-beta").
func ValidateVersion(versionStr string) error {
	if _, err := version.NewVersion(versionStr); err != nil {
		return fmt.Errorf("invalid version: %w", err)
	}
	return nil
}

// CompareVersions compares two version strings.
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2.
func CompareVersions(v1Str, v2Str string) (int, error) {
	v1, err := version.NewVersion(v1Str)
	if err != nil {
		return 0, fmt.Errorf("invalid version v1: %w", err)
	}
	v2, err := version.NewVersion(v2Str)
	if err != nil {
		return 0, fmt.Errorf("invalid version v2: %w", err)
	}
	return v1.Compare(v2), nil
}

// ValidateEmail checks an address is a parseable bare email (no display name).
func ValidateEmail(addr string) error {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return fmt.Errorf("invalid email address: %w", err)
	}
	if parsed.Address != addr {
		return fmt.Errorf("email address must not include a display name")
	}
	return nil
}

// ValidateCallbackURL checks a consumer callback. Non-prefix callbacks may use
// the out-of-band value "oob"; prefix callbacks must be concrete http(s) URLs
// since they are matched as string prefixes at authorization time.
func ValidateCallbackURL(raw string, isPrefix bool) error {
	if raw == "oob" {
		if isPrefix {
			return fmt.Errorf(`"oob" cannot be used as a prefix callback`)
		}
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid callback URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("callback URL must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("callback URL must include a host")
	}
	return nil
}

// ValidateIPRanges checks each entry is an IP address or CIDR range.
func ValidateIPRanges(ranges []string) error {
	for _, r := range ranges {
		if strings.Contains(r, "/") {
			if _, err := netip.ParsePrefix(r); err != nil {
				return fmt.Errorf("invalid CIDR range %q: %w", r, err)
			}
			continue
		}
		if _, err := netip.ParseAddr(r); err != nil {
			return fmt.Errorf("invalid IP address %q: %w", r, err)
		}
	}
	return nil
}

// ValidateRSAPublicKey performs a light structural check of a PEM public key.
// Full parsing happens at signature verification time; registration only
// rejects obviously wrong material.
func ValidateRSAPublicKey(pemData string) error {
	trimmed := strings.TrimSpace(pemData)
	if !strings.HasPrefix(trimmed, "-----BEGIN PUBLIC KEY-----") &&
		!strings.HasPrefix(trimmed, "-----BEGIN RSA PUBLIC KEY-----") {
		return fmt.Errorf("public key must be PEM-encoded")
	}
	if !strings.HasSuffix(trimmed, "KEY-----") {
		return fmt.Errorf("public key PEM block is truncated")
	}
	return nil
}
