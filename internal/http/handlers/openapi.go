package handlers

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"html/template"
	"net/http"
	"sync"
	"time"
)

//go:embed openapi.json
var openAPIDocument []byte

// docsPage lists the job endpoints first and expands the submit response.
var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <title>{{.Title}} {{.Version}} reference</title>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <style>
      body { margin: 0; }
      redoc { display: block; height: 100vh; }
    </style>
  </head>
  <body>
    <redoc spec-url="{{.DocumentURL}}" expand-responses="202" required-props-first="true" sort-operations-alphabetically="false"></redoc>
    <script src="https://cdn.jsdelivr.net/npm/redoc@2.2.0/bundles/redoc.standalone.js"></script>
  </body>
</html>`))

type apiInfo struct {
	Title   string
	Version string
	ETag    string
}

var loadAPIInfo = sync.OnceValue(func() apiInfo {
	var doc struct {
		Info struct {
			Title   string `json:"title"`
			Version string `json:"version"`
		} `json:"info"`
	}
	_ = json.Unmarshal(openAPIDocument, &doc)
	sum := sha256.Sum256(openAPIDocument)
	return apiInfo{
		Title:   doc.Info.Title,
		Version: doc.Info.Version,
		ETag:    `"` + hex.EncodeToString(sum[:8]) + `"`,
	}
})

// OpenAPIJSON serves the embedded document; the ETag lets clients revalidate.
func (a *App) OpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("ETag", loadAPIInfo().ETag)
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(openAPIDocument))
}

// OpenAPIDocs renders the Redoc reference page for the job API.
func (a *App) OpenAPIDocs(w http.ResponseWriter, r *http.Request) {
	info := loadAPIInfo()
	var buf bytes.Buffer
	err := docsPage.Execute(&buf, map[string]string{
		"Title":       info.Title,
		"Version":     info.Version,
		"DocumentURL": "/v1/openapi.json",
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
