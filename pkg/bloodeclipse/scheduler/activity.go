package scheduler

import (
	"context"
	"fmt"
	"sync"
)

// ActivitySetter updates the bot's status line.
type ActivitySetter func(ctx context.Context, activity string) error

// ActivityRotation cycles through a fixed list of status lines.
type ActivityRotation struct {
	activities []string
	set        ActivitySetter

	mu   sync.Mutex
	next int
}

// NewActivityRotation creates a rotation. The first fire shows the second
// entry, since the first one is set when the channel connects.
func NewActivityRotation(activities []string, set ActivitySetter) *ActivityRotation {
	return &ActivityRotation{activities: activities, set: set, next: 1}
}

// Current returns the activity the next fire will show.
func (r *ActivityRotation) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.activities) == 0 {
		return ""
	}
	return r.activities[r.next%len(r.activities)]
}

// Run is a JobHandler that advances the rotation.
func (r *ActivityRotation) Run(ctx context.Context, _ *Job) error {
	r.mu.Lock()
	if len(r.activities) == 0 {
		r.mu.Unlock()
		return fmt.Errorf("no activities configured")
	}
	activity := r.activities[r.next%len(r.activities)]
	r.next++
	r.mu.Unlock()

	return r.set(ctx, activity)
}

// Job wraps the rotation into a schedulable job.
func (r *ActivityRotation) Job(schedule string) *Job {
	return &Job{
		ID:       "activity-rotation",
		Schedule: schedule,
		Enabled:  true,
		Run:      r.Run,
	}
}
