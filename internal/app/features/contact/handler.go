// internal/app/features/contact/handler.go
package contact

import (
	"context"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/dalemusser/formguard/internal/app/system/formguard"
	"github.com/dalemusser/formguard/internal/app/system/htmlsanitize"
	"github.com/dalemusser/formguard/internal/app/system/viewdata"
	"github.com/dalemusser/formguard/internal/app/system/widget"
	"github.com/dalemusser/waffle/pantry/templates"
	"go.uber.org/zap"
)

// SubmitField names the send button.
const SubmitField = "submitMessage"

const maxMessageLen = 5000

// Widgets supplies the Turnstile widget. *formguard.Guard satisfies it.
type Widgets interface {
	Injector(ctx context.Context) widget.Injector
	PendingFailure(w http.ResponseWriter, r *http.Request) string
}

type pageData struct {
	viewdata.BaseVM
	Name        string
	Email       string
	Message     string
	SubmitField string
	Error       string
}

type Handler struct {
	Widgets Widgets
	Log     *zap.Logger
}

func NewHandler(widgets Widgets, logger *zap.Logger) *Handler {
	return &Handler{
		Widgets: widgets,
		Log:     logger,
	}
}

// ServeContact handles GET /contact.
func (h *Handler) ServeContact(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageData{})
}

// HandleContact handles POST /contact. Submissions reach it only after
// the form guard accepted the Turnstile token.
func (h *Handler) HandleContact(w http.ResponseWriter, r *http.Request) {
	if f, ok := formguard.FailureFromContext(r.Context()); ok {
		h.render(w, r, http.StatusBadRequest, pageData{Error: f.Message})
		return
	}
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, pageData{Error: "Invalid form data."})
		return
	}

	data := pageData{
		Name:    htmlsanitize.StripTags(r.PostFormValue("name")),
		Email:   strings.TrimSpace(r.PostFormValue("email")),
		Message: htmlsanitize.StripTags(r.PostFormValue("message")),
	}

	switch {
	case data.Message == "":
		data.Error = "Please enter a message."
	case utf8.RuneCountInString(data.Message) > maxMessageLen:
		data.Error = "Message is too long."
	case data.Email != "" && !validEmail(data.Email):
		data.Error = "Please enter a valid email address."
	}
	if data.Error != "" {
		h.render(w, r, http.StatusUnprocessableEntity, data)
		return
	}

	h.Log.Info("contact message received",
		zap.String("name", data.Name),
		zap.Bool("has_email", data.Email != ""),
		zap.Int("length", utf8.RuneCountInString(data.Message)),
	)

	templates.Render(w, r, "contact_thanks", pageData{
		BaseVM: viewdata.NewBaseVM(r, "Message sent", "/contact"),
		Name:   data.Name,
	})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	data.BaseVM = viewdata.NewBaseVM(r, "Contact", "/")
	if h.Widgets != nil {
		data.BaseVM = data.BaseVM.WithTurnstile(h.Widgets.Injector(r.Context()), h.Widgets.PendingFailure(w, r))
	}
	data.SubmitField = SubmitField
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	templates.Render(w, r, "contact", data)
}

func validEmail(s string) bool {
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s
}
