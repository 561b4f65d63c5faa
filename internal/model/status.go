package model

// MemberStatus is the per-date service state of a booking line.
type MemberStatus string

const (
	StatusYet    MemberStatus = "yet"
	StatusDone   MemberStatus = "done"
	StatusCancel MemberStatus = "cancel"
)

// memberTransitions lists allowed moves. done and cancel are terminal for a
// date; the only way back to yet is an explicit undo.
var memberTransitions = map[MemberStatus][]MemberStatus{
	StatusYet:    {StatusDone, StatusCancel},
	StatusDone:   {StatusDone, StatusYet},
	StatusCancel: {StatusCancel, StatusYet},
}

// CanTransition checks if a member may move from one status to another.
func CanTransition(from, to MemberStatus) bool {
	if from == "" {
		from = StatusYet
	}
	for _, s := range memberTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s MemberStatus) Valid() bool {
	_, ok := memberTransitions[s]
	return ok
}
