// Package scheduling decides whether appointments may occupy a time range,
// orchestrates create/reschedule/delete, and drives the status lifecycle.
package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/ruanmelo/navalha/internal/directory"
	"github.com/ruanmelo/navalha/internal/model"
)

// Overlaps reports whether the half-open minute intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Touching endpoints do not count.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

// Conflict describes an existing appointment blocking a candidate slot.
type Conflict struct {
	Appointment model.Appointment
	StartMin    int
	EndMin      int
}

// ConflictError is returned by the scheduler when a requested range overlaps
// a non-cancelled appointment on the same day.
type ConflictError struct {
	Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("time slot conflicts with an appointment from %s to %s",
		clock(e.StartMin), clock(e.EndMin))
}

func clock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// ConflictChecker runs the overlap scan over one day's appointments. It never
// mutates state; it only reads through the directory view it was given.
type ConflictChecker struct {
	dir directory.Directory
}

func NewConflictChecker(dir directory.Directory) *ConflictChecker {
	return &ConflictChecker{dir: dir}
}

// FindConflict returns the first non-cancelled appointment on day whose
// occupied interval overlaps [startMin, startMin+durationMin), or nil.
// excludeID skips one appointment so an edit does not conflict with itself.
func (c *ConflictChecker) FindConflict(ctx context.Context, day time.Time, startMin, durationMin int, excludeID string) (*Conflict, error) {
	endMin := startMin + durationMin

	appts, err := c.dir.AppointmentsOnDay(ctx, day)
	if err != nil {
		return nil, err
	}

	durations := map[string]int{}
	for _, a := range appts {
		if a.ID == excludeID || a.Status == model.StatusCancelled {
			continue
		}
		// Appointments arrive ordered by start time; once an appointment
		// starts at or after the candidate's end, nothing later can overlap.
		if a.StartMin >= endMin {
			break
		}
		d, ok := durations[a.ServiceID]
		if !ok {
			svc, err := c.dir.GetService(ctx, a.ServiceID)
			if err != nil {
				return nil, err
			}
			d = svc.Duration.Minutes()
			durations[a.ServiceID] = d
		}
		if Overlaps(startMin, endMin, a.StartMin, a.StartMin+d) {
			return &Conflict{Appointment: a, StartMin: a.StartMin, EndMin: a.StartMin + d}, nil
		}
	}
	return nil, nil
}
