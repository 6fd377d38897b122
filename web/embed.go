// Package web holds the server rendered templates and the static assets
// served under /static/.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.html
var TemplatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Static returns the assets rooted at static/, so app.js is served as
// /static/app.js.
func Static() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}
