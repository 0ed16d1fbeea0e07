// Package widget adds the Turnstile challenge to HTML pages.
//
// Rewrite streams a document through the x/net/html tokenizer, copying
// every token byte for byte and inserting the API script, an optional
// failure banner and one challenge container per form. Form contents are
// held until the closing tag so the footer can win over an earlier button.
package widget

import (
	"bufio"
	"errors"
	"html/template"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// DefaultScriptURL is the Turnstile client API.
const DefaultScriptURL = "https://challenges.cloudflare.com/turnstile/v0/api.js"

// DefaultTheme is applied to injected containers.
const DefaultTheme = "light"

// Injector holds what is rendered into pages.
type Injector struct {
	SiteKey        string
	Theme          string
	ScriptURL      string
	FailureMessage string
}

func (in Injector) theme() string {
	if in.Theme == "" {
		return DefaultTheme
	}
	return in.Theme
}

func (in Injector) scriptURL() string {
	if in.ScriptURL == "" {
		return DefaultScriptURL
	}
	return in.ScriptURL
}

// ScriptHTML is the API script tag for server-rendered layouts.
func (in Injector) ScriptHTML() template.HTML {
	return template.HTML(`<script src="` + html.EscapeString(in.scriptURL()) + `" async defer></script>`)
}

// FormHTML is the challenge container for server-rendered forms. It is
// empty when no site key is configured.
func (in Injector) FormHTML() template.HTML {
	if in.SiteKey == "" {
		return ""
	}
	return template.HTML(`<div class="cf-turnstile" data-sitekey="` + html.EscapeString(in.SiteKey) +
		`" data-theme="` + html.EscapeString(in.theme()) + `"></div>`)
}

// BannerHTML is the failure notice shown after a refused submission.
func (in Injector) BannerHTML() template.HTML {
	if in.FailureMessage == "" {
		return ""
	}
	return template.HTML(`<div class="alert alert-danger turnstile-error" role="alert">` +
		html.EscapeString(in.FailureMessage) + `</div>`)
}

// formBuffer holds one form's tokens until its end tag, when the
// insertion point can be chosen with the whole form in view.
type formBuffer struct {
	open      bool
	tokens    [][]byte
	footer    int
	submit    int
	button    int
	hasWidget bool
}

func (f *formBuffer) reset() {
	*f = formBuffer{footer: -1, submit: -1, button: -1}
}

// add buffers raw; tok classifies start tags and is nil for anything else.
func (f *formBuffer) add(raw []byte, tok *html.Token) {
	i := len(f.tokens)
	f.tokens = append(f.tokens, raw)
	if tok == nil {
		return
	}
	switch {
	case hasClass(*tok, "cf-turnstile"):
		f.hasWidget = true
	case isFooter(*tok):
		if f.footer < 0 {
			f.footer = i
		}
	case isSubmit(*tok):
		if f.submit < 0 {
			f.submit = i
		}
	}
	if tok.Data == "button" && f.button < 0 {
		f.button = i
	}
}

// insertAt returns the token index the challenge goes before, or -1.
// A footer wins over the first submit control; any button is the last
// resort. Forms with nothing that can submit are left alone.
func (f *formBuffer) insertAt() int {
	if f.hasWidget {
		return -1
	}
	target := f.submit
	if target < 0 {
		target = f.button
	}
	if target < 0 {
		return -1
	}
	if f.footer >= 0 {
		return f.footer
	}
	return target
}

func (f *formBuffer) flush(w *bufio.Writer, container string) {
	at := f.insertAt()
	for i, raw := range f.tokens {
		if i == at {
			w.WriteString(container)
		}
		w.Write(raw)
	}
	f.reset()
}

// Rewrite copies src to dst, injecting the widget. With an empty site key
// the document passes through untouched.
func (in Injector) Rewrite(dst io.Writer, src io.Reader, showFailure bool) error {
	if in.SiteKey == "" {
		_, err := io.Copy(dst, src)
		return err
	}

	w := bufio.NewWriter(dst)
	z := html.NewTokenizer(src)
	container := string(in.FormHTML())

	var (
		scriptDone bool
		bannerDone = !showFailure
		form       formBuffer
	)
	form.reset()

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				break
			}
			return z.Err()
		}
		raw := append([]byte(nil), z.Raw()...)

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if form.open {
				form.add(raw, &tok)
				continue
			}
			switch {
			case tok.Data == "script" && strings.Contains(attr(tok, "src"), "turnstile/v0/api.js"):
				scriptDone = true
			case tok.Data == "body" && !scriptDone:
				// Documents without a head get the script ahead of <body>.
				w.WriteString(string(in.ScriptHTML()))
				scriptDone = true
			case tok.Data == "form" && tt == html.StartTagToken:
				form.open = true
				form.add(raw, nil)
				continue
			}
			w.Write(raw)
			if tok.Data == "body" && !bannerDone {
				w.WriteString(string(in.BannerHTML()))
				bannerDone = true
			}
			continue

		case html.EndTagToken:
			name, _ := z.TagName()
			if form.open {
				form.add(raw, nil)
				if string(name) == "form" {
					form.flush(w, container)
				}
				continue
			}
			if string(name) == "head" && !scriptDone {
				w.WriteString(string(in.ScriptHTML()))
				scriptDone = true
			}
		}
		if form.open {
			form.add(raw, nil)
			continue
		}
		w.Write(raw)
	}
	if form.open {
		form.flush(w, container)
	}
	return w.Flush()
}

func isFooter(tok html.Token) bool {
	return tok.Data == "footer" || hasClass(tok, "form-footer") || hasClass(tok, "card-footer")
}

// isSubmit matches input[type=submit], button[type=submit], button without
// a type, and inputs or buttons whose name starts with "submit".
func isSubmit(tok html.Token) bool {
	switch tok.Data {
	case "input":
		return strings.EqualFold(attr(tok, "type"), "submit") || strings.HasPrefix(attr(tok, "name"), "submit")
	case "button":
		typ := attr(tok, "type")
		return typ == "" || strings.EqualFold(typ, "submit") || strings.HasPrefix(attr(tok, "name"), "submit")
	}
	return false
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(tok html.Token, class string) bool {
	for _, c := range strings.Fields(attr(tok, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
