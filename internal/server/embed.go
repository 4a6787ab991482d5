// Package server handles embedding and serving of the dashboard UI.
// Static files are embedded via the root-level webui package,
// which can access the sibling web/ directory via go:embed.
package server

import (
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jkoivu/picorelay/webui"
)

// RegisterStaticFiles mounts the embedded dashboard on the Gin engine.
// API routes registered before this take precedence; all unmatched routes
// fall back to index.html.
func RegisterStaticFiles(r *gin.Engine) {
	webRoot, err := fs.Sub(webui.FS, "web")
	if err != nil {
		panic("embed: web sub-fs failed: " + err.Error())
	}
	staticFS := http.FS(webRoot)

	r.NoRoute(func(c *gin.Context) {
		// Serve the requested file if it exists, otherwise the dashboard page.
		name := c.Request.URL.Path
		if f, err := staticFS.Open(name); err == nil {
			defer f.Close()
			if stat, err := f.Stat(); err == nil && !stat.IsDir() {
				http.ServeContent(c.Writer, c.Request, name, stat.ModTime(), f)
				return
			}
		}

		f, err := staticFS.Open("index.html")
		if err != nil {
			c.String(http.StatusNotFound, "dashboard not found")
			return
		}
		defer f.Close()
		stat, _ := f.Stat()
		c.DataFromReader(http.StatusOK, stat.Size(), "text/html; charset=utf-8", f, nil)
	})
}
