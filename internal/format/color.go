package format

import (
	"fmt"
	"regexp"
	"strings"
)

// Color is an mIRC colour number.
type Color int

const (
	White Color = iota
	Black
	DarkBlue
	DarkGreen
	LightRed
	DarkRed
	Magenta
	Orange
	Yellow
	LightGreen
	Cyan
	LightCyan
	LightBlue
	LightMagenta
	Gray
	LightGray
)

const (
	colorCode = "\x03"
	resetCode = "\x0f"
	// boldToggle is an empty bold span used to stop a leading ",<digit>" in
	// the text from being read as a background colour.
	boldToggle = "\x02\x02"
)

var formattingCodes = regexp.MustCompile(`\x03(?:\d{1,2}(?:,\d{1,2})?)?|[\x02\x0f\x16\x1d\x1e\x1f]`)

// Wrap colours text and resets formatting afterwards.
func Wrap(c Color, text string) string {
	var b strings.Builder
	b.WriteString(colorCode)
	fmt.Fprintf(&b, "%02d", int(c))
	if strings.HasPrefix(text, ",") {
		b.WriteString(boldToggle)
	}
	b.WriteString(text)
	b.WriteString(resetCode)
	return b.String()
}

// Strip removes all IRC formatting codes, leaving the literal text.
func Strip(s string) string {
	return formattingCodes.ReplaceAllString(s, "")
}

// Clean drops raw formatting control bytes from untrusted text so it cannot
// restyle a line. Digits that followed a colour byte are kept.
func Clean(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\x02', '\x03', '\x0f', '\x16', '\x1d', '\x1e', '\x1f':
			return -1
		}
		return r
	}, s)
}
