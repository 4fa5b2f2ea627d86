package http

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// static serves the console from PublicDir. Unknown API paths get a JSON 404
// and unknown UI paths fall back to index.html.
func (h *Handler) static() gin.HandlerFunc {
	files := http.FileServer(http.Dir(h.deps.PublicDir))
	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if strings.HasPrefix(p, "/api/") || p == "/api" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		if h.deps.PublicDir == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}

		clean := filepath.Join(h.deps.PublicDir, filepath.FromSlash(filepath.Clean("/"+p)))
		if st, err := os.Stat(clean); err != nil || (st.IsDir() && p != "/") {
			c.Request.URL.Path = "/"
		}
		files.ServeHTTP(c.Writer, c.Request)
	}
}
