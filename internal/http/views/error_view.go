// Package views renderiza los errores del flujo de login hacia el navegador.
package views

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/dropDatabas3/o365auth/internal/http/errors"
)

// ErrorView escribe status + cuerpo para un error terminal.
type ErrorView interface {
	Render(w http.ResponseWriter, r *http.Request, err *errors.AppError)
}

// New devuelve la vista configurada ("json" por defecto, "html").
func New(kind string) (ErrorView, error) {
	switch kind {
	case "", "json":
		return JSON{}, nil
	case "html":
		return NewHTML(), nil
	default:
		return nil, fmt.Errorf("views: unknown error view %q", kind)
	}
}

// JSON usa el contrato {"code","message","detail"}.
type JSON struct{}

func (JSON) Render(w http.ResponseWriter, _ *http.Request, err *errors.AppError) {
	errors.WriteError(w, err)
}

const errorPage = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Sign-in failed</title>
<style>body{font-family:sans-serif;max-width:40rem;margin:4rem auto;color:#222}code{color:#888}</style>
</head>
<body>
<h1>Sign-in failed</h1>
<p>{{.Message}}</p>
{{if .Detail}}<p><small>{{.Detail}}</small></p>{{end}}
<p><code>{{.Code}}</code></p>
</body>
</html>
`

// HTML es una página mínima para apps que no consumen JSON.
type HTML struct {
	tpl *template.Template
}

func NewHTML() *HTML {
	return &HTML{tpl: template.Must(template.New("error").Parse(errorPage))}
}

func (h *HTML) Render(w http.ResponseWriter, _ *http.Request, err *errors.AppError) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(err.HTTPStatus)
	_ = h.tpl.Execute(w, err)
}
