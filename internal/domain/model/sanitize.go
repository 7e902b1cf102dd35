package model

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxErrorLength bounds a sanitized error message in bytes.
const MaxErrorLength = 512

var (
	reStackFrame = regexp.MustCompile(`(?m)^\s*(at |goroutine \d+|\S+\.go:\d+|\s*created by ).*$`)
	reGoFrame    = regexp.MustCompile(`\S+\.go:\d+(:\d+)?`)
	reUnixPath   = regexp.MustCompile(`(?:/[\w.@+-]+){2,}/?`)
	reWinPath    = regexp.MustCompile(`[A-Za-z]:\\(?:[^\\\s"']+\\)*[^\\\s"']*`)
	reVersion    = regexp.MustCompile(`\bv?\d+\.\d+\.\d+(?:[-+.][0-9A-Za-z.-]+)?\b`)
	reSpace      = regexp.MustCompile(`\s+`)
)

// SanitizeError strips file paths, stack frames and version strings from msg,
// collapses whitespace and bounds the result to MaxErrorLength bytes.
func SanitizeError(msg string) string {
	out := reStackFrame.ReplaceAllString(msg, " ")
	out = reGoFrame.ReplaceAllString(out, "")
	out = reWinPath.ReplaceAllString(out, "<path>")
	out = reUnixPath.ReplaceAllString(out, "<path>")
	out = reVersion.ReplaceAllString(out, "<version>")
	out = strings.TrimSpace(reSpace.ReplaceAllString(out, " "))
	if out == "" {
		out = "scan failed"
	}
	return truncateUTF8(out, MaxErrorLength)
}

func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
