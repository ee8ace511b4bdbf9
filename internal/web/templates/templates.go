// Package templates embeds the storefront's HTML templates.
package templates

import "embed"

//go:embed *.html pages/*.html partials/*.html
var FS embed.FS
