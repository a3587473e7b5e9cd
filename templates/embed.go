// Package templates embeds the default configuration files written by
// shiftflow init.
package templates

import "embed"

//go:embed config.yaml rules.yaml
var FS embed.FS
