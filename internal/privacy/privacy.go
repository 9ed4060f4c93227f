// Package privacy removes credentials from URLs before they reach logs.
package privacy

import (
	"net/url"
	"regexp"
	"strings"
)

// brokerURLPattern finds broker URLs embedded in free text such as driver
// error messages.
var brokerURLPattern = regexp.MustCompile(`\b(?:tcp|mqtts?|ssl|tls|wss?)://\S+`)

// SanitizeURL strips credentials, path and query from a URL and keeps
// scheme, host and port for debugging. Strings that do not parse as a URL
// with a host are returned unchanged.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return stripUserinfo(raw)
	}
	return u.Scheme + "://" + u.Host
}

// stripUserinfo drops everything between "://" and the last '@' of the
// authority for inputs url.Parse rejects.
func stripUserinfo(raw string) string {
	_, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	authority, _, _ := strings.Cut(rest, "/")
	at := strings.LastIndexByte(authority, '@')
	if at < 0 {
		return raw
	}
	return raw[:len(raw)-len(rest)] + rest[at+1:]
}

// ScrubMessage sanitizes every broker URL found in message.
func ScrubMessage(message string) string {
	return brokerURLPattern.ReplaceAllStringFunc(message, SanitizeURL)
}
