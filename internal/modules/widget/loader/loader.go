// Package loader renders and serves the embeddable widget script, d.js.
package loader

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"

	"github.com/gin-gonic/gin"
)

const (
	ContentType  = "application/javascript"
	CacheControl = "public, max-age=3600, stale-while-revalidate=86400"
)

//go:embed d.js.tmpl
var scriptSource string

var scriptTmpl = template.Must(template.New("d.js").Parse(scriptSource))

// Render returns the loader with endpoint baked in. The endpoint is emitted as
// a JSON string literal, which is also a valid JavaScript string literal.
func Render(endpoint string) ([]byte, error) {
	lit, err := json.Marshal(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("encode endpoint: %w", err)
	}
	var buf bytes.Buffer
	if err := scriptTmpl.Execute(&buf, struct{ Endpoint string }{string(lit)}); err != nil {
		return nil, fmt.Errorf("render loader: %w", err)
	}
	return buf.Bytes(), nil
}

type Handler struct {
	script []byte
}

// NewHandler renders the script once; the public URL does not change while
// the process runs.
func NewHandler(endpoint string) (*Handler, error) {
	script, err := Render(endpoint)
	if err != nil {
		return nil, err
	}
	return &Handler{script: script}, nil
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/d.js", h.serve)
	r.HEAD("/d.js", h.serve)
}

func (h *Handler) serve(c *gin.Context) {
	c.Header("Cache-Control", CacheControl)
	c.Header("Access-Control-Allow-Origin", "*")
	c.Data(http.StatusOK, ContentType, h.script)
}
