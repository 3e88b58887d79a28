package period

import (
	"fmt"
	"strings"

	"kpiflow/internal/domain/apperr"
)

type Quarter string

const (
	Q1  Quarter = "Q1"
	Q2  Quarter = "Q2"
	Q3  Quarter = "Q3"
	Q4  Quarter = "Q4"
	All Quarter = "All"
)

var Quarters = []Quarter{Q1, Q2, Q3, Q4}

var ErrInvalidQuarter = apperr.New(apperr.KindValidation, "invalid_quarter", "quarter must be one of Q1, Q2, Q3, Q4")

// ParseQuarter accepts Q1..Q4 and All, case-insensitively.
func ParseQuarter(raw string) (Quarter, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "ALL" {
		return All, nil
	}
	q := Quarter(value)
	if !q.Valid() {
		return "", ErrInvalidQuarter.Withf("invalid quarter %q", raw)
	}
	return q, nil
}

// Valid reports whether q names a concrete quarter. All is not valid.
func (q Quarter) Valid() bool {
	switch q {
	case Q1, Q2, Q3, Q4:
		return true
	}
	return false
}

// Resolve maps All to the active quarter.
func (q Quarter) Resolve(active Quarter) Quarter {
	if q == All || q == "" {
		return active
	}
	return q
}

// Key identifies one employee's review period.
type Key struct {
	EmployeeID string  `json:"employeeId"`
	Quarter    Quarter `json:"quarter"`
	Year       int     `json:"year"`
}

func NewKey(employeeID string, quarter Quarter, year int) Key {
	return Key{EmployeeID: employeeID, Quarter: quarter, Year: year}
}

// String is the deterministic document key used for final reviews.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%d", k.EmployeeID, k.Quarter, k.Year)
}

func (k Key) Validate() error {
	if strings.TrimSpace(k.EmployeeID) == "" {
		return apperr.New(apperr.KindValidation, "employee_required", "employee id is required")
	}
	if !k.Quarter.Valid() {
		return ErrInvalidQuarter
	}
	if k.Year < 2000 || k.Year > 2100 {
		return apperr.New(apperr.KindValidation, "invalid_year", "year must be between 2000 and 2100")
	}
	return nil
}
