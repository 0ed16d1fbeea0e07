// internal/app/features/auditlog/types.go
package auditlog

import (
	"time"

	"github.com/dalemusser/formguard/internal/app/store/audit"
	"github.com/dalemusser/formguard/internal/app/system/viewdata"
)

// listItem represents a single audit event row for display.
type listItem struct {
	ID            string
	Timestamp     time.Time
	Category      string
	EventType     string
	Actor         string
	IP            string
	Path          string
	Success       bool
	FailureReason string
	Details       map[string]string
}

// listData is the view model for the audit log list page.
type listData struct {
	viewdata.BaseVM

	Items []listItem

	// Filters
	Category  string
	EventType string
	Outcome   string
	IP        string
	StartDate string
	EndDate   string

	// Filter options
	Categories []option
	EventTypes []string
	Outcomes   []option

	// Pagination
	Total      int64
	RangeStart int
	RangeEnd   int
	HasPrev    bool
	HasNext    bool
	PrevURL    string
	NextURL    string
}

// option is a value/label pair for a filter dropdown.
type option struct {
	Value string
	Label string
}

// allCategories returns the available categories for filtering.
func allCategories() []option {
	return []option{
		{Value: audit.CategorySecurity, Label: "Form verification"},
		{Value: audit.CategoryAuth, Label: "Authentication"},
		{Value: audit.CategoryAdmin, Label: "Administration"},
	}
}

func allOutcomes() []option {
	return []option{
		{Value: "passed", Label: "Passed"},
		{Value: "failed", Label: "Failed"},
	}
}

// eventTypesForCategory returns the event types for a given category.
// If category is empty, returns all event types.
func eventTypesForCategory(category string) []string {
	securityEvents := []string{
		audit.EventTurnstilePassed,
		audit.EventTurnstileMissingToken,
		audit.EventTurnstileRejected,
		audit.EventTurnstileUnavailable,
		audit.EventTurnstileRateLimited,
		audit.EventTurnstileMisconfigured,
		audit.EventTurnstileSettingsUnreadable,
	}

	authEvents := []string{
		audit.EventLoginSuccess,
		audit.EventLoginFailedWrongPassword,
		audit.EventLoginFailedRateLimit,
		audit.EventLogout,
	}

	adminEvents := []string{
		audit.EventSettingsUpdated,
	}

	switch category {
	case audit.CategorySecurity:
		return securityEvents
	case audit.CategoryAuth:
		return authEvents
	case audit.CategoryAdmin:
		return adminEvents
	case "":
		all := make([]string, 0, len(securityEvents)+len(authEvents)+len(adminEvents))
		all = append(all, securityEvents...)
		all = append(all, authEvents...)
		all = append(all, adminEvents...)
		return all
	default:
		return nil
	}
}

func validCategory(category string) bool {
	for _, c := range allCategories() {
		if c.Value == category {
			return true
		}
	}
	return false
}
