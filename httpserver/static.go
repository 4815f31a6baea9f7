package httpserver

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFiles embed.FS

// adminPage serves the embedded template administration page.
func adminPage() http.Handler {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix(adminPagePrefix, http.FileServer(http.FS(sub)))
}
