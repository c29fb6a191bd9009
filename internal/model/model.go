package model

import (
	"time"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusEnRoute   Status = "en_route"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusEnRoute, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further lifecycle transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

type Client struct {
	ID      string
	Name    string
	Phone   string
	Address string
	Notes   string
}

type Service struct {
	ID          string
	Name        string
	Description string
	Duration    Duration
	Price       Price
	Active      bool
}

// Appointment occupies the half-open interval [StartMin, StartMin+duration)
// on Day, where the duration comes from the referenced service.
type Appointment struct {
	ID                 string
	ClientID           *string // nil = walk-in
	ServiceID          string
	Day                time.Time // civil date, midnight UTC
	StartMin           int       // minutes since midnight
	Status             Status
	PaymentStatus      PaymentStatus
	Notes              string
	ArrivalEstimateMin *int // set on the en-route transition, kept afterwards
	CreatedAt          time.Time
}

// Day normalizes t to its civil date at midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Event is a domain event recorded in the same transaction as the write
// that produced it and published asynchronously.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
