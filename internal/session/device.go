package session

import (
	"os"
	"runtime"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// DeviceInfo describes the environment a session was captured in. It is
// sent once with the first event batch and stored alongside the session.
type DeviceInfo struct {
	UserAgent      string `json:"user_agent"`
	Platform       string `json:"platform"`
	Language       string `json:"language,omitempty"`
	ScreenWidth    int    `json:"screen_width,omitempty"`
	ScreenHeight   int    `json:"screen_height,omitempty"`
	ViewportWidth  int    `json:"viewport_width,omitempty"`
	ViewportHeight int    `json:"viewport_height,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
	Online         bool   `json:"online"`
}

// Collector produces device info for the current environment. The capture
// controller takes one so tests can pin the description.
type Collector interface {
	Collect() DeviceInfo
}

// HostCollector describes the local host. UserAgent is synthesized from
// the process name and runtime since there is no browser to ask.
type HostCollector struct {
	AppName    string
	AppVersion string
}

func (c HostCollector) Collect() DeviceInfo {
	name := c.AppName
	if name == "" {
		name = "rewind"
	}
	version := c.AppVersion
	if version == "" {
		version = "dev"
	}

	zone, _ := time.Now().Zone()

	return DeviceInfo{
		UserAgent: name + "/" + version + " (" + runtime.GOOS + "; " + runtime.GOARCH + ")",
		Platform:  runtime.GOOS,
		Language:  NormalizeLocale(hostLocale()),
		Timezone:  zone,
		Online:    true,
	}
}

// NormalizeLocale canonicalizes a locale string to a BCP 47 tag, so that
// "en_US.UTF-8", "en-us" and "en-US" all store identically. Unparseable
// input is returned trimmed rather than discarded.
func NormalizeLocale(locale string) string {
	trimmed := strings.TrimSpace(locale)
	if trimmed == "" {
		return ""
	}
	if i := strings.IndexAny(trimmed, ".@"); i >= 0 {
		trimmed = trimmed[:i]
	}
	trimmed = strings.ReplaceAll(trimmed, "_", "-")
	tag, err := language.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	return tag.String()
}

func hostLocale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if value := os.Getenv(key); value != "" && value != "C" && value != "POSIX" {
			return value
		}
	}
	return ""
}
