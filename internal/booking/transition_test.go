package booking

import "testing"

func TestTransitionAllowed(t *testing.T) {
	cases := []struct {
		name string
		role Role
		from Status
		to   Status
		want bool
	}{
		{"customer cannot confirm", RoleCustomer, StatusPending, StatusConfirmed, false},
		{"customer cancels pending", RoleCustomer, StatusPending, StatusCancelled, true},
		{"customer cancels confirmed", RoleCustomer, StatusConfirmed, StatusCancelled, true},
		{"customer cancels queued", RoleCustomer, StatusQueued, StatusCancelled, true},
		{"customer cannot complete", RoleCustomer, StatusConfirmed, StatusCompleted, false},
		{"customer cannot reopen", RoleCustomer, StatusCancelled, StatusPending, false},

		{"staff confirms pending", RoleStaff, StatusPending, StatusConfirmed, true},
		{"staff completes confirmed", RoleStaff, StatusConfirmed, StatusCompleted, true},
		{"staff cancels queued", RoleStaff, StatusQueued, StatusCancelled, true},
		{"staff cannot reopen completed", RoleStaff, StatusCompleted, StatusConfirmed, false},
		{"staff cannot skip to completed", RoleStaff, StatusPending, StatusCompleted, false},

		{"admin confirms pending", RoleAdmin, StatusPending, StatusConfirmed, true},
		{"admin reopens cancelled", RoleAdmin, StatusCancelled, StatusConfirmed, true},
		{"admin reopens completed to queued", RoleAdmin, StatusCompleted, StatusQueued, true},
		{"admin cannot no-op cancel", RoleAdmin, StatusCancelled, StatusCancelled, false},

		{"system cancels pending", RoleSystem, StatusPending, StatusCancelled, true},
		{"system cannot confirm", RoleSystem, StatusPending, StatusConfirmed, false},
		{"system cannot touch queued", RoleSystem, StatusQueued, StatusCancelled, false},

		{"unknown role", Role("visitor"), StatusPending, StatusCancelled, false},
		{"queued cannot be confirmed directly", RoleStaff, StatusQueued, StatusConfirmed, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TransitionAllowed(tc.role, tc.from, tc.to); got != tc.want {
				t.Fatalf("TransitionAllowed(%s, %s, %s) = %v, want %v", tc.role, tc.from, tc.to, got, tc.want)
			}
		})
	}
}
