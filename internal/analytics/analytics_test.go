package analytics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSocialCrawler(t *testing.T) {
	crawlers := []string{
		"facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)",
		"Twitterbot/1.0",
		"LinkedInBot/1.0 (compatible; Mozilla/5.0; Apache-HttpClient +http://www.linkedin.com)",
		"Slackbot-LinkExpanding 1.0 (+https://api.slack.com/robots)",
		"Mozilla/5.0 (compatible; Discordbot/2.0; +https://discordapp.com)",
	}
	for _, ua := range crawlers {
		assert.True(t, IsSocialCrawler(ua), ua)
	}

	assert.False(t, IsSocialCrawler("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36"))
	assert.False(t, IsSocialCrawler(""))
}

func TestParseClient(t *testing.T) {
	desktop := ParseClient("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.109 Safari/537.36")
	assert.Equal(t, "Desktop", desktop.Device)
	assert.Equal(t, "Chrome 120.0", desktop.Browser)
	assert.True(t, strings.HasPrefix(desktop.OS, "Windows"), desktop.OS)

	mobile := ParseClient("Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1")
	assert.Equal(t, "Mobile", mobile.Device)
	assert.NotEmpty(t, mobile.Browser)

	assert.Equal(t, Client{}, ParseClient(""))
}

func TestPrimaryLanguage(t *testing.T) {
	assert.Equal(t, "en-US", PrimaryLanguage("en-US,en;q=0.9,fr;q=0.8"))
	assert.Equal(t, "de", PrimaryLanguage("de;q=1.0"))
	assert.Equal(t, "", PrimaryLanguage(""))
}

func TestMajorMinor(t *testing.T) {
	major, minor := majorMinor("17.1.2")
	assert.Equal(t, "17", major)
	assert.Equal(t, "1", minor)

	major, minor = majorMinor("9")
	assert.Equal(t, "9", major)
	assert.Equal(t, "0", minor)

	major, _ = majorMinor("")
	assert.Equal(t, "", major)
}
