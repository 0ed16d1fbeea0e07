package formguard

import (
	"net/url"
	"sort"
	"strings"
)

// SubmissionKind classifies a posted form.
type SubmissionKind int

const (
	// NotSubmission means the request carries nothing that needs verifying.
	NotSubmission SubmissionKind = iota
	// FormSubmission is any form posting a field whose name starts with
	// the submit prefix.
	FormSubmission
	// LoginSubmission is a form without a submit field that carries every
	// login field.
	LoginSubmission
)

func (k SubmissionKind) String() string {
	switch k {
	case FormSubmission:
		return "form"
	case LoginSubmission:
		return "login"
	default:
		return "none"
	}
}

// Submission is the result of Detect.
type Submission struct {
	Kind SubmissionKind
	// Triggers lists the posted submit fields, sorted.
	Triggers []string
}

// IsSubmission reports whether the request must be verified.
func (s Submission) IsSubmission() bool { return s.Kind != NotSubmission }

// Detect decides whether form is a submission that must carry a token.
func (c Config) Detect(form url.Values) Submission {
	var triggers []string
	for key := range form {
		if strings.HasPrefix(key, c.SubmitPrefix) {
			triggers = append(triggers, key)
		}
	}
	if len(triggers) > 0 {
		sort.Strings(triggers)
		return Submission{Kind: FormSubmission, Triggers: triggers}
	}

	if len(form) == 0 || len(c.LoginFields) == 0 {
		return Submission{}
	}
	if hasAll(form, c.LoginFields) {
		return Submission{Kind: LoginSubmission}
	}
	return Submission{}
}

func hasAll(form url.Values, keys []string) bool {
	for _, k := range keys {
		if _, ok := form[k]; !ok {
			return false
		}
	}
	return true
}
