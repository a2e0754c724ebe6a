// Package analytics classifies inbound clients for click enrichment.
package analytics

import (
	"fmt"
	"strings"

	"github.com/mssola/useragent"
)

// crawlerSignatures are substrings of social preview bots, lowercased
var crawlerSignatures = []string{
	"facebookexternalhit",
	"twitterbot",
	"linkedinbot",
	"slackbot",
	"discordbot",
}

// IsSocialCrawler reports whether the user agent belongs to a link-preview bot
func IsSocialCrawler(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, sig := range crawlerSignatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}

// Client is the device information derived from a user agent
type Client struct {
	Device  string
	Browser string
	OS      string
}

// ParseClient extracts device class, browser and OS.
// Unknown parts are returned as empty strings.
func ParseClient(userAgent string) Client {
	if strings.TrimSpace(userAgent) == "" {
		return Client{}
	}

	ua := useragent.New(userAgent)
	c := Client{OS: ua.OSInfo().Name}
	if v := ua.OSInfo().Version; v != "" && c.OS != "" {
		c.OS = fmt.Sprintf("%s %s", c.OS, v)
	}

	name, version := ua.Browser()
	if name != "" {
		c.Browser = name
		if major, minor := majorMinor(version); major != "" {
			c.Browser = fmt.Sprintf("%s %s.%s", name, major, minor)
		}
	}

	switch {
	case ua.Bot():
		c.Device = "Bot"
	case ua.Mobile():
		c.Device = "Mobile"
	default:
		c.Device = "Desktop"
	}
	return c
}

// majorMinor returns the first two dotted components, minor defaulting to 0
func majorMinor(version string) (string, string) {
	parts := strings.SplitN(version, ".", 3)
	if parts[0] == "" {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], "0"
	}
	return parts[0], parts[1]
}

// PrimaryLanguage returns the first language tag of an Accept-Language header
func PrimaryLanguage(acceptLanguage string) string {
	first, _, _ := strings.Cut(acceptLanguage, ",")
	tag, _, _ := strings.Cut(first, ";")
	return strings.TrimSpace(tag)
}
