package run

// ItemStatus tracks one item through a run.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemReady     ItemStatus = "ready"
	ItemRunning   ItemStatus = "running"
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
	ItemSkipped   ItemStatus = "skipped"
)

// Terminal reports whether no further transition can occur for the status
// short of a backward-jump reset.
func (s ItemStatus) Terminal() bool {
	switch s {
	case ItemSucceeded, ItemFailed, ItemSkipped:
		return true
	}
	return false
}

// Resolved reports whether downstream items may treat the status as a
// satisfied dependency. Skips count: a skipped predecessor behaves like a
// succeeded one for admission purposes.
func (s ItemStatus) Resolved() bool {
	return s == ItemSucceeded || s == ItemSkipped
}

// Status is the overall state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the run has ended.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
