package shared

import (
	"net/http"
	"strconv"
	"strings"
)

// PageLimits is the default and ceiling for a list endpoint's ?limit=.
type PageLimits struct {
	Default int
	Max     int
}

var (
	AuditPage        = PageLimits{Default: 100, Max: 500}
	NotificationPage = PageLimits{Default: 50, Max: 200}
)

type Page struct {
	Limit  int
	Offset int
}

// ParsePage reads ?limit= and ?offset=. Values that are not integers or
// fall outside the limits are recorded on v rather than clamped.
func ParsePage(r *http.Request, v *Validator, limits PageLimits) Page {
	page := Page{Limit: limits.Default}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > limits.Max {
			v.Add("limit", "must be between 1 and "+strconv.Itoa(limits.Max))
		} else {
			page.Limit = n
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			v.Add("offset", "must be zero or more")
		} else {
			page.Offset = n
		}
	}
	return page
}
