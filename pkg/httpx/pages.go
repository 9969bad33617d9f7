package httpx

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
)

//go:embed templates/errors/*.html
var pageFS embed.FS

var pages = template.Must(template.ParseFS(pageFS, "templates/errors/*.html"))

type pageData struct {
	Status  int
	Title   string
	Message string
}

// RenderErrorPage renders errors/<status>.html, or errors/error.html when
// no page exists for the status.
func RenderErrorPage(w http.ResponseWriter, status int, msg string) {
	data := pageData{Status: status, Title: http.StatusText(status), Message: msg}
	name := fmt.Sprintf("%d.html", status)
	if pages.Lookup(name) == nil {
		name = "error.html"
	}
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, msg, status)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
