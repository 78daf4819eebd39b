// Package webui embeds the browser console served by psb serve.
package webui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFS embed.FS

// Handler serves the console with prefix stripped from request paths.
func Handler(prefix string) http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// The embed path is fixed at build time.
		panic(err)
	}
	return http.StripPrefix(prefix, http.FileServerFS(sub))
}
