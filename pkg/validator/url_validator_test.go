package validator

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDestinationURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		allowed []string
		valid   bool
	}{
		{"https", "https://example.com/path?q=1", nil, true},
		{"http upper scheme", "HTTP://example.com", nil, true},
		{"ftp rejected", "ftp://example.com/file", nil, false},
		{"javascript rejected", "javascript:alert(1)", nil, false},
		{"empty", "", nil, false},
		{"localhost", "http://localhost:8080/", nil, false},
		{"loopback ip", "http://127.0.0.1/", nil, false},
		{"private ip", "http://192.168.1.10/", nil, false},
		{"ipv6 loopback", "http://[::1]/", nil, false},
		{"allowed domain", "https://shop.example.com/", []string{"example.com"}, true},
		{"disallowed domain", "https://evil.test/", []string{"example.com"}, false},
		{"too long", "https://example.com/" + strings.Repeat("a", MaxURLLength), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDestinationURL(tt.url, tt.allowed)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateSlug(t *testing.T) {
	assert.True(t, ValidateSlug("a"))
	assert.True(t, ValidateSlug("My_Code-2"))
	assert.False(t, ValidateSlug(""))
	assert.False(t, ValidateSlug("bad/slug"))
	assert.False(t, ValidateSlug(strings.Repeat("x", 51)))
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, IsPrivateIP(net.ParseIP("10.0.0.1")))
	assert.True(t, IsPrivateIP(net.ParseIP("::1")))
	assert.True(t, IsPrivateIP(net.ParseIP("169.254.1.1")))
	assert.False(t, IsPrivateIP(net.ParseIP("8.8.8.8")))
}
