package validator

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

var (
	// urlRegex is a coarse shape check before parsing
	urlRegex = regexp.MustCompile(`^(?i:https?)://[^\s/$.?#].[^\s]*$`)

	// slugRegex validates slug format (alphanumeric, hyphens, underscores)
	slugRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

	// allowedSchemes lists permitted destination schemes
	allowedSchemes = map[string]bool{
		"http":  true,
		"https": true,
	}
)

// MaxURLLength is the longest destination URL accepted
const MaxURLLength = 2048

// ValidateURL checks if a string is a syntactically valid http(s) URL
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Field: "url", Message: "URL cannot be empty"}
	}

	if len(rawURL) > MaxURLLength {
		return &ValidationError{Field: "url", Message: "URL too long (max 2048 characters)"}
	}

	if !urlRegex.MatchString(rawURL) {
		return &ValidationError{Field: "url", Message: "Invalid URL format"}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{Field: "url", Message: "Invalid URL structure"}
	}

	if !allowedSchemes[strings.ToLower(parsed.Scheme)] {
		return &ValidationError{Field: "url", Message: "Unsupported URL scheme"}
	}

	if parsed.Hostname() == "" {
		return &ValidationError{Field: "url", Message: "URL must contain a host"}
	}

	return nil
}

// ValidateDestinationURL checks format and refuses destinations pointing at
// localhost or private networks. When allowedDomains is non-empty the host
// must equal one of them or be a subdomain of one.
func ValidateDestinationURL(rawURL string, allowedDomains []string) error {
	if err := ValidateURL(rawURL); err != nil {
		return err
	}

	parsed, _ := url.Parse(rawURL)
	host := strings.ToLower(parsed.Hostname())

	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return &ValidationError{Field: "url", Message: "Destination host is not allowed"}
	}
	if ip := net.ParseIP(host); ip != nil && IsPrivateIP(ip) {
		return &ValidationError{Field: "url", Message: "Destination host is not allowed"}
	}

	if len(allowedDomains) > 0 && !domainAllowed(host, allowedDomains) {
		return &ValidationError{Field: "url", Message: "Destination domain is not allowed"}
	}

	return nil
}

// IsPrivateIP reports loopback, private, link-local and unspecified addresses
func IsPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

func domainAllowed(host string, allowed []string) bool {
	for _, d := range allowed {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// ValidateSlug checks if a custom slug has valid format
func ValidateSlug(slug string) bool {
	return slugRegex.MatchString(slug)
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
