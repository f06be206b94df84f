package booking

// transitions is the role-aware status machine: for each role, the set of
// target statuses reachable from a given current status. Unlisted pairs are
// rejected. New roles or statuses are added here, not in handler code.
var transitions = map[Role]map[Status][]Status{
	RoleCustomer: {
		StatusPending:   {StatusCancelled},
		StatusConfirmed: {StatusCancelled},
		StatusQueued:    {StatusCancelled},
	},
	RoleStaff: {
		StatusPending:   {StatusConfirmed, StatusCancelled},
		StatusConfirmed: {StatusCompleted, StatusCancelled},
		StatusQueued:    {StatusCancelled},
	},
	RoleAdmin: {
		StatusPending:   {StatusConfirmed, StatusCancelled},
		StatusConfirmed: {StatusCompleted, StatusCancelled},
		StatusQueued:    {StatusCancelled},
		// Admin override: terminal bookings may be reopened to any other
		// status. Reopening still goes through the slot critical section so
		// the single-holder invariant cannot be broken.
		StatusCompleted: {StatusPending, StatusConfirmed, StatusQueued, StatusCancelled},
		StatusCancelled: {StatusPending, StatusConfirmed, StatusQueued, StatusCompleted},
	},
	RoleSystem: {
		// The expiry worker only cancels overdue pending bookings.
		StatusPending: {StatusCancelled},
	},
}

// TransitionAllowed reports whether role may move a booking from one status
// to another. It authorizes only; callers perform the actual write.
func TransitionAllowed(role Role, from, to Status) bool {
	byStatus, ok := transitions[role]
	if !ok {
		return false
	}
	for _, allowed := range byStatus[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
