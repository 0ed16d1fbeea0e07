package login

import (
	"embed"
	"sync"

	"github.com/dalemusser/waffle/pantry/templates"
)

//go:embed templates/*.gohtml
var FS embed.FS

var registerOnce sync.Once

// RegisterTemplates adds the login page set to the template engine.
func RegisterTemplates() {
	registerOnce.Do(func() {
		templates.Register(templates.Set{
			Name:     "login",
			FS:       FS,
			Patterns: []string{"templates/*.gohtml"},
		})
	})
}
