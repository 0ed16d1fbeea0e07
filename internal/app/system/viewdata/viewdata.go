// internal/app/system/viewdata/viewdata.go
package viewdata

import (
	"html/template"
	"net/http"

	"github.com/dalemusser/formguard/internal/app/system/auth"
	"github.com/dalemusser/formguard/internal/app/system/htmlsanitize"
	"github.com/dalemusser/formguard/internal/app/system/widget"
	"github.com/gorilla/csrf"
)

// CSRFField is the form field that carries the admin CSRF token.
const CSRFField = "csrf_token"

// BaseVM contains common fields for all view models.
// Embed this struct in your feature-specific view models.
//
// Usage:
//
//	type myPageData struct {
//	    viewdata.BaseVM
//	    // page-specific fields...
//	}
//
//	data := myPageData{
//	    BaseVM: viewdata.NewBaseVM(r, "Page Title", "/default-back"),
//	    // page-specific fields...
//	}
type BaseVM struct {
	// Admin context (from auth middleware)
	IsAdmin   bool
	AdminName string

	// Page context
	Title       string
	BackURL     string
	CurrentPath string
	CSRFToken   string

	// Turnstile rendering for server-side pages
	TurnstileScript template.HTML
	TurnstileWidget template.HTML
	Banner          template.HTML
}

// NewBaseVM creates a BaseVM populated from the request.
func NewBaseVM(r *http.Request, title, backURL string) BaseVM {
	vm := BaseVM{
		Title:       title,
		BackURL:     backURL,
		CurrentPath: r.URL.Path,
		CSRFToken:   csrf.Token(r),
	}
	if a, ok := auth.CurrentAdmin(r); ok {
		vm.IsAdmin = true
		vm.AdminName = a.Name
	}
	return vm
}

// WithTurnstile adds the script and form container for in. A non-empty
// banner is sanitized and shown at the top of the page.
func (vm BaseVM) WithTurnstile(in widget.Injector, banner string) BaseVM {
	if in.SiteKey != "" {
		vm.TurnstileScript = in.ScriptHTML()
		vm.TurnstileWidget = in.FormHTML()
	}
	if banner != "" {
		vm.Banner = htmlsanitize.MessageHTML(banner)
	}
	return vm
}
