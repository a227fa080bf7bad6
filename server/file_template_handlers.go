package server

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/jrsteele09/go-bank-dashboard/dashboard"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*
var templateFiles embed.FS

const contentTypeHTML = "text/html; charset=utf-8"

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

var templateFuncs = template.FuncMap{
	"money": dashboard.FormatAmount,
	"date": func(t time.Time) string {
		return t.Format("02 Jan 2006 15:04")
	},
	"neg": func(n int64) bool { return n < 0 },
}

// ParseTemplate parses a template from the embedded filesystem
func ParseTemplate(name string) (*template.Template, error) {
	content, err := fs.ReadFile(TemplateFilesFS(), name)
	if err != nil {
		return nil, err
	}
	return template.New(name).Funcs(templateFuncs).Parse(string(content))
}

type pages struct {
	dashboard *template.Template
	message   *template.Template
}

func parsePages() (*pages, error) {
	dash, err := ParseTemplate("dashboard.html")
	if err != nil {
		return nil, err
	}
	msg, err := ParseTemplate("message.html")
	if err != nil {
		return nil, err
	}
	return &pages{dashboard: dash, message: msg}, nil
}

// render buffers the page so a template failure never sends half a page
func render(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Err(err).Str("template", tmpl.Name()).Msg("Failed to render template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
