package frame

import (
	"errors"
	"net/url"
	"strings"
)

// ErrTargetOrigin is returned when a message targets an origin other than the
// one the receiving window actually belongs to.
var ErrTargetOrigin = errors.New("target origin does not match window origin")

// BlankSrc is the placeholder source of a frame that has not navigated yet.
const BlankSrc = "about:blank"

// Window is a handle messages can be posted to.
type Window interface {
	PostMessage(msg any, targetOrigin string) error
}

// OriginOf reduces a URL to scheme://host[:port]. Default ports are dropped so
// that "https://a.example:443/x" and "https://a.example" compare equal.
// Unparseable or host-less input returns "".
func OriginOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return scheme + "://" + host + ":" + port
	}

	return scheme + "://" + host
}

// TargetMatches applies the postMessage targetOrigin rule: "*" matches every
// window, anything else must resolve to the window's own origin.
func TargetMatches(targetOrigin string, windowOrigin string) bool {
	targetOrigin = strings.TrimSpace(targetOrigin)
	if targetOrigin == "*" {
		return true
	}

	target := OriginOf(targetOrigin)
	if target == "" {
		return false
	}

	return target == OriginOf(windowOrigin)
}
