package validate

import "time"

// Messages may be amended or removed for a fixed interval after creation,
// boundary inclusive. Both windows are currently the same length; they are
// separate predicates because the product treats them as separate policies.
const (
	EditWindow   = 15 * time.Minute
	DeleteWindow = 15 * time.Minute
)

// WithinEditWindow reports whether a message created at createdAt may
// still be edited at now. Pure; the datastore side re-runs the same check
// against its authoritative created_at.
func WithinEditWindow(createdAt, now time.Time) bool {
	return withinWindow(createdAt, now, EditWindow)
}

// WithinDeleteWindow reports whether the message may still be deleted.
func WithinDeleteWindow(createdAt, now time.Time) bool {
	return withinWindow(createdAt, now, DeleteWindow)
}

func withinWindow(createdAt, now time.Time, window time.Duration) bool {
	age := now.Sub(createdAt)
	if age < 0 {
		// Clock skew between client and store; a future created_at is
		// treated as freshly created.
		return true
	}
	return age <= window
}
