// internal/app/features/errors/templates.go
package errors

import (
	"embed"
	"sync"

	"github.com/dalemusser/waffle/pantry/templates"
)

//go:embed templates/*.gohtml
var FS embed.FS

var registerOnce sync.Once

// RegisterTemplates adds the error page set to the template engine.
func RegisterTemplates() {
	registerOnce.Do(func() {
		templates.Register(templates.Set{
			Name:     "errors",
			FS:       FS,
			Patterns: []string{"templates/*.gohtml"},
		})
	})
}
