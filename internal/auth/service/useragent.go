package service

import (
	"strings"

	"github.com/mssola/useragent"
)

// deviceLabel summarizes a User-Agent header as "<browser> on <os>" for the
// refresh ledger's client metadata. IP is deliberately not part of it.
func deviceLabel(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return "bot"
	}

	browser, _ := ua.Browser()
	browser = strings.TrimSpace(browser)
	if browser == "" {
		browser = "unknown browser"
	}
	os := strings.TrimSpace(ua.OS())
	if os == "" {
		os = "unknown OS"
	}
	label := browser + " on " + os
	if ua.Mobile() {
		label += " (mobile)"
	}
	return label
}
