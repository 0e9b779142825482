package model

import (
	_ "embed"
	"strings"
)

//go:embed help.md
var helpMD string

// Help returns the user guide as markdown.
func Help() string {
	return strings.ReplaceAll(helpMD, "{{VERSION}}", Version)
}
