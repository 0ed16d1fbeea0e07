// internal/app/features/auditlog/list.go
package auditlog

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/formguard/internal/app/store/audit"
	"github.com/dalemusser/formguard/internal/app/system/paging"
	"github.com/dalemusser/formguard/internal/app/system/timeouts"
	"github.com/dalemusser/formguard/internal/app/system/viewdata"
	"github.com/dalemusser/waffle/pantry/templates"
)

const dateLayout = "2006-01-02"

// ServeList handles GET /admin/audit - displays the audit log with filtering.
//
// Dates are whole days in UTC. Unknown categories and unparsable dates
// are ignored rather than rejected.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := strings.TrimSpace(q.Get("category"))
	if !validCategory(category) {
		category = ""
	}
	eventType := strings.TrimSpace(q.Get("event_type"))
	outcome := strings.TrimSpace(q.Get("outcome"))
	ip := strings.TrimSpace(q.Get("ip"))
	startDate := strings.TrimSpace(q.Get("start_date"))
	endDate := strings.TrimSpace(q.Get("end_date"))
	start := paging.ParseStart(r)

	filter := audit.QueryFilter{
		Category:  category,
		EventType: eventType,
		IP:        ip,
		Limit:     paging.PageSize,
		Offset:    paging.Offset(start),
	}
	switch outcome {
	case "passed", "failed":
		ok := outcome == "passed"
		filter.Success = &ok
	default:
		outcome = ""
	}
	if t, err := time.Parse(dateLayout, startDate); err == nil {
		filter.StartTime = &t
	} else {
		startDate = ""
	}
	if t, err := time.Parse(dateLayout, endDate); err == nil {
		endOfDay := t.Add(24*time.Hour - time.Nanosecond)
		filter.EndTime = &endOfDay
	} else {
		endDate = ""
	}

	data := listData{
		BaseVM:     viewdata.NewBaseVM(r, "Audit Log", "/admin/settings"),
		Category:   category,
		EventType:  eventType,
		Outcome:    outcome,
		IP:         ip,
		StartDate:  startDate,
		EndDate:    endDate,
		Categories: allCategories(),
		EventTypes: eventTypesForCategory(category),
		Outcomes:   allOutcomes(),
	}

	if h.Events == nil {
		render(w, r, data)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "audit log list")
	defer cancel()

	events, err := h.Events.Query(ctx, filter)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "failed to query audit events", err, "The audit log is unavailable.", "/admin/settings")
		return
	}
	total, err := h.Events.CountByFilter(ctx, filter)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "failed to count audit events", err, "The audit log is unavailable.", "/admin/settings")
		return
	}

	data.Items = make([]listItem, 0, len(events))
	for _, e := range events {
		data.Items = append(data.Items, listItem{
			ID:            e.ID.Hex(),
			Timestamp:     e.Timestamp.UTC(),
			Category:      e.Category,
			EventType:     e.EventType,
			Actor:         e.Actor,
			IP:            e.IP,
			Path:          e.Path,
			Success:       e.Success,
			FailureReason: e.FailureReason,
			Details:       e.Details,
		})
	}

	rg := paging.ComputeRange(start, len(data.Items), total)
	data.Total = rg.Total
	data.RangeStart = rg.Start
	data.RangeEnd = rg.End
	data.HasPrev = rg.HasPrev
	data.HasNext = rg.HasNext
	if rg.HasPrev {
		data.PrevURL = pageURL(r.URL.Path, q, rg.PrevStart)
	}
	if rg.HasNext {
		data.NextURL = pageURL(r.URL.Path, q, rg.NextStart)
	}

	render(w, r, data)
}

// pageURL keeps the current filters and replaces the start index.
func pageURL(path string, q url.Values, start int) string {
	next := url.Values{}
	for k, v := range q {
		if k != "start" {
			next[k] = v
		}
	}
	if start > 1 {
		next.Set("start", strconv.Itoa(start))
	}
	if len(next) == 0 {
		return path
	}
	return path + "?" + next.Encode()
}

func render(w http.ResponseWriter, r *http.Request, data listData) {
	w.Header().Set("Cache-Control", "no-store")
	templates.Render(w, r, "admin_audit", data)
}
