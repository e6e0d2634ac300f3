package server

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFiles embed.FS

var staticFS = mustSub(staticFiles, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic("failed to create sub filesystem: " + err.Error())
	}
	return sub
}

// serveStatic writes an embedded asset. http.ServeFileFS sets the content
// type and answers conditional and range requests.
func serveStatic(w http.ResponseWriter, r *http.Request, name string) error {
	info, err := fs.Stat(staticFS, name)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", name)
	}
	http.ServeFileFS(w, r, staticFS, name)
	return nil
}
