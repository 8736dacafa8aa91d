// Package userutil derives the per-user suffix shared by the instance lock
// and the activation endpoint.
package userutil

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

var invalidUsernameRune = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// usernameEnv is checked in order; USERNAME is set on Windows, USER on unix.
var usernameEnv = []string{"USERNAME", "USER"}

var lookupCurrentUser = user.Current

// SanitizeUsername maps anything outside [a-zA-Z0-9._-] to "_" so the value
// is safe in pipe, socket and mutex names.
func SanitizeUsername(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return invalidUsernameRune.ReplaceAllString(value, "_")
}

// CurrentUsername returns the raw login name, or "" when none is known.
func CurrentUsername() string {
	for _, key := range usernameEnv {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	if current, err := lookupCurrentUser(); err == nil {
		return current.Username
	}
	return ""
}

// InstanceName builds the per-user name, e.g. "snapqr-alice".
func InstanceName(prefix string) string {
	return prefix + "-" + SanitizeUsername(CurrentUsername())
}
