package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format of start_date and end_date.
const DateLayout = "2006-01-02"

// MaxTopN bounds top_n.
const MaxTopN = 100

// ErrInvalidQuery wraps every parameter validation failure.
var ErrInvalidQuery = errors.New("analytics: invalid query")

// Query is a validated top-regions request. Zero dates mean unbounded.
type Query struct {
	StartDate  time.Time
	EndDate    time.Time
	Categories []string
	TopN       int
}

// ParseQuery reads and validates request parameters. defaultTopN applies
// when top_n is absent.
func ParseQuery(values url.Values, defaultTopN int) (Query, error) {
	q := Query{TopN: defaultTopN}

	var err error
	if q.StartDate, err = parseDate(values, "start_date"); err != nil {
		return Query{}, err
	}
	if q.EndDate, err = parseDate(values, "end_date"); err != nil {
		return Query{}, err
	}
	if !q.StartDate.IsZero() && !q.EndDate.IsZero() && q.EndDate.Before(q.StartDate) {
		return Query{}, fmt.Errorf("%w: end_date must be >= start_date", ErrInvalidQuery)
	}

	for _, c := range values["category"] {
		if c = strings.TrimSpace(c); c != "" && !slices.Contains(q.Categories, c) {
			q.Categories = append(q.Categories, c)
		}
	}

	if raw := values.Get("top_n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Query{}, fmt.Errorf("%w: top_n must be an integer", ErrInvalidQuery)
		}
		q.TopN = n
	}
	if q.TopN < 1 || q.TopN > MaxTopN {
		return Query{}, fmt.Errorf("%w: top_n must be between 1 and %d", ErrInvalidQuery, MaxTopN)
	}
	return q, nil
}

func parseDate(values url.Values, name string) (time.Time, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrInvalidQuery, name)
	}
	return t, nil
}

type queryJSON struct {
	StartDate  *string  `json:"start_date"`
	EndDate    *string  `json:"end_date"`
	Categories []string `json:"categories"`
	TopN       int      `json:"top_n"`
}

// MarshalJSON echoes the query with dates as YYYY-MM-DD or null.
func (q Query) MarshalJSON() ([]byte, error) {
	return json.Marshal(queryJSON{
		StartDate:  formatDate(q.StartDate),
		EndDate:    formatDate(q.EndDate),
		Categories: q.Categories,
		TopN:       q.TopN,
	})
}

// UnmarshalJSON reverses MarshalJSON.
func (q *Query) UnmarshalJSON(data []byte) error {
	var raw queryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*q = Query{Categories: raw.Categories, TopN: raw.TopN}
	if raw.StartDate != nil {
		t, err := time.Parse(DateLayout, *raw.StartDate)
		if err != nil {
			return err
		}
		q.StartDate = t
	}
	if raw.EndDate != nil {
		t, err := time.Parse(DateLayout, *raw.EndDate)
		if err != nil {
			return err
		}
		q.EndDate = t
	}
	return nil
}

func formatDate(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}
