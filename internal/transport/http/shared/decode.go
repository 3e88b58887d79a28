package shared

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"kpiflow/internal/domain/period"
	"kpiflow/internal/transport/http/api"
)

// DecodeJSON reads the body into dst and validates its tags. It writes
// the failure response itself and reports whether the handler may go on.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, requestID string) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", requestID)
		case errors.Is(err, io.EOF):
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "request body is empty", requestID)
		default:
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid json payload", requestID)
		}
		return false
	}
	v := NewValidator()
	v.Struct(dst)
	return !v.Reject(w, requestID)
}

// PeriodParams reads {quarter} and {year} URL params. A bad value records
// an issue on v.
func PeriodParams(r *http.Request, v *Validator) (period.Quarter, int) {
	q, err := period.ParseQuarter(chi.URLParam(r, "quarter"))
	if err != nil {
		v.Add("quarter", "must be one of Q1, Q2, Q3, Q4 or All")
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 2000 || year > 2100 {
		v.Add("year", "must be a year between 2000 and 2100")
	}
	return q, year
}

// PeriodQuery reads optional ?quarter= and ?year= filters.
func PeriodQuery(r *http.Request, v *Validator) (period.Quarter, int) {
	var q period.Quarter
	if raw := strings.TrimSpace(r.URL.Query().Get("quarter")); raw != "" {
		parsed, err := period.ParseQuarter(raw)
		if err != nil {
			v.Add("quarter", "must be one of Q1, Q2, Q3, Q4 or All")
		}
		q = parsed
	}
	year := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("year")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2000 || parsed > 2100 {
			v.Add("year", "must be a year between 2000 and 2100")
		}
		year = parsed
	}
	return q, year
}
