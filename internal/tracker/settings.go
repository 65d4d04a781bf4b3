package tracker

import (
	"fmt"
	"strings"
)

// Format selects how readable display strings are built.
type Format string

const (
	FormatBoth     Format = "both"
	FormatLocation Format = "location"
	FormatRegion   Format = "region"
)

// ParseFormat accepts the format names case-insensitively; empty means both.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatBoth, nil
	case FormatBoth, FormatLocation, FormatRegion:
		return f, nil
	default:
		return "", fmt.Errorf("unknown display format %q", s)
	}
}

// Settings are the display options that change classification output.
type Settings struct {
	Format       Format `yaml:"format" json:"format"`
	HideExcluded bool   `yaml:"hide_excluded" json:"hide_excluded"`
	ShowGlitched bool   `yaml:"show_glitched" json:"show_glitched"`
}

func (s Settings) normalized() Settings {
	if f, err := ParseFormat(string(s.Format)); err == nil {
		s.Format = f
	} else {
		s.Format = FormatBoth
	}
	return s
}
