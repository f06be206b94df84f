package booking

import (
	"testing"

	"github.com/google/uuid"
)

func TestSlotKeyValidate(t *testing.T) {
	id := uuid.New()

	key := SlotKey{PropertyID: id, Date: "2024-01-15", Time: "10:00:00"}
	if err := key.Validate(); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}

	bad := []SlotKey{
		{PropertyID: uuid.Nil, Date: "2024-01-15", Time: "10:00:00"},
		{PropertyID: id, Date: "15/01/2024", Time: "10:00:00"},
		{PropertyID: id, Date: "2024-01-15", Time: "10:00"},
		{PropertyID: id, Date: "", Time: "10:00:00"},
	}
	for _, k := range bad {
		if err := k.Validate(); err == nil {
			t.Fatalf("expected error for key %+v", k)
		}
	}
}

func TestSlotKeyLockKey(t *testing.T) {
	id := uuid.MustParse("a7f1c1f6-0b87-4a5b-9a43-16cf8a2f9a01")
	key := SlotKey{PropertyID: id, Date: "2024-01-15", Time: "10:00:00"}

	want := "lock:slot:a7f1c1f6-0b87-4a5b-9a43-16cf8a2f9a01|2024-01-15|10:00:00"
	if got := key.LockKey(); got != want {
		t.Fatalf("lock key: got %q, want %q", got, want)
	}

	other := SlotKey{PropertyID: id, Date: "2024-01-15", Time: "11:00:00"}
	if key.LockKey() == other.LockKey() {
		t.Fatal("different slots must not share a lock key")
	}
}

func TestStatusPredicates(t *testing.T) {
	if !StatusPending.IsActive() || !StatusConfirmed.IsActive() {
		t.Fatal("pending and confirmed are active holder statuses")
	}
	if StatusQueued.IsActive() || StatusCancelled.IsActive() {
		t.Fatal("queued and cancelled must not be active")
	}
	if !StatusCompleted.IsTerminal() || !StatusCancelled.IsTerminal() {
		t.Fatal("completed and cancelled are terminal")
	}
	if Status("unknown").Valid() {
		t.Fatal("unknown status must not validate")
	}
}
