package domain

import "time"

type Status string

const (
	StatusPending  Status = "Pending"
	StatusReviewed Status = "Reviewed"
	StatusHired    Status = "Hired"
	StatusRejected Status = "Rejected"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusReviewed, StatusHired, StatusRejected}

// Valid reports whether s is one of the enumerated statuses. Matching is
// exact: "pending" is not a status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReviewed, StatusHired, StatusRejected:
		return true
	}
	return false
}

// Candidate is a referred job applicant.
type Candidate struct {
	ID         string
	Name       string
	Email      string
	Phone      string
	JobTitle   string
	Status     Status
	Notes      string
	ReferredBy *string
	Resume     *Attachment
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Stats is the per-status breakdown of all candidates. Total always equals
// the sum of the buckets.
type Stats struct {
	Total    int64
	ByStatus map[Status]int64
}

// NewStats builds Stats from raw per-status counts, filling in zero buckets.
func NewStats(counts map[Status]int64) *Stats {
	s := &Stats{ByStatus: make(map[Status]int64, len(Statuses))}
	for _, st := range Statuses {
		n := counts[st]
		s.ByStatus[st] = n
		s.Total += n
	}
	return s
}
