// Package events publishes candidate lifecycle events for downstream
// consumers such as ATS sync or analytics.
package events

import (
	"context"
	"time"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
)

type Type string

const (
	CandidateCreated       Type = "candidate.created"
	CandidateUpdated       Type = "candidate.updated"
	CandidateStatusChanged Type = "candidate.status_changed"
	CandidateDeleted       Type = "candidate.deleted"
)

type Event struct {
	Type           Type          `json:"type"`
	CandidateID    string        `json:"candidate_id"`
	Email          string        `json:"email,omitempty"`
	JobTitle       string        `json:"job_title,omitempty"`
	Status         domain.Status `json:"status,omitempty"`
	PreviousStatus domain.Status `json:"previous_status,omitempty"`
	ReferredBy     *string       `json:"referred_by,omitempty"`
	RequestID      string        `json:"request_id,omitempty"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// New builds an event snapshot of c.
func New(t Type, c *domain.Candidate, at time.Time) Event {
	return Event{
		Type:        t,
		CandidateID: c.ID,
		Email:       c.Email,
		JobTitle:    c.JobTitle,
		Status:      c.Status,
		ReferredBy:  c.ReferredBy,
		OccurredAt:  at,
	}
}

// Publisher never blocks the caller on the broker and never fails a
// request: delivery problems are logged and counted.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// NopPublisher discards events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
