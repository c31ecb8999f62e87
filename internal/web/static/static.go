// Package static embeds the stylesheet served under /static/.
package static

import (
	"embed"
	"net/http"
)

//go:embed css/*
var assets embed.FS

// Handler serves the embedded assets. Paths are relative to the package
// directory, so mount it behind http.StripPrefix.
func Handler() http.Handler {
	files := http.FileServer(http.FS(assets))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}
