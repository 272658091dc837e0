// Package web embeds the page (dist/) and serves it: the map and chat view,
// the login page and their static assets.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// Page names.
const (
	IndexPage = "index.html"
	LoginPage = "login.html"
)

func sub() fs.FS {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return subFS
}

// PageHandler serves one embedded HTML page regardless of the request path.
// Query parameters are left for the page script.
func PageHandler(name string) http.Handler {
	subFS := sub()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := fs.ReadFile(subFS, name)
		if err != nil {
			slog.Error("web: embedded page missing", "page", name, "error", err)
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if _, err := w.Write(data); err != nil {
			slog.Debug("web: failed to write page", "page", name, "error", err)
		}
	})
}

// AssetHandler serves static files under /assets/.
func AssetHandler() http.Handler {
	subFS := sub()
	fileServer := http.FileServer(http.FS(subFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if !strings.HasPrefix(path, "assets/") {
			http.NotFound(w, r)
			return
		}
		f, err := subFS.Open(path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if closeErr := f.Close(); closeErr != nil {
			slog.Debug("web: failed to close embedded file", "path", path, "error", closeErr)
		}
		fileServer.ServeHTTP(w, r)
	})
}
