package booking

import (
	"testing"

	"github.com/google/uuid"
)

func TestPlanQueueShift_AscendingOrder(t *testing.T) {
	idA := uuid.New()
	idB := uuid.New()
	idC := uuid.New()

	// Rows arrive in storage order, which after cancellations need not match
	// position order.
	entries := []queueShift{{id: idC, to: 4}, {id: idA, to: 2}, {id: idB, to: 3}}

	shifts := planQueueShift(entries)
	if len(shifts) != 3 {
		t.Fatalf("expected 3 shifts, got %d", len(shifts))
	}

	wantIDs := []uuid.UUID{idA, idB, idC}
	wantPos := []int{1, 2, 3}
	for i, sh := range shifts {
		if sh.id != wantIDs[i] {
			t.Fatalf("shift %d: expected id %s, got %s", i, wantIDs[i], sh.id)
		}
		if sh.to != wantPos[i] {
			t.Fatalf("shift %d: expected target %d, got %d", i, wantPos[i], sh.to)
		}
	}
}

func TestPlanQueueShift_NoTransientDuplicates(t *testing.T) {
	// Positions {2,3,4} shift down after position 1 is freed. Applying the
	// plan one row at a time must never land on a still-occupied position;
	// a storage-order walk (4 before 3 before 2) would.
	idA := uuid.New()
	idB := uuid.New()
	idC := uuid.New()
	entries := []queueShift{{id: idC, to: 4}, {id: idB, to: 3}, {id: idA, to: 2}}

	occupied := map[int]uuid.UUID{2: idA, 3: idB, 4: idC}
	current := map[uuid.UUID]int{idA: 2, idB: 3, idC: 4}

	for _, sh := range planQueueShift(entries) {
		if holder, taken := occupied[sh.to]; taken && holder != sh.id {
			t.Fatalf("moving %s to position %d collides with %s", sh.id, sh.to, holder)
		}
		delete(occupied, current[sh.id])
		occupied[sh.to] = sh.id
		current[sh.id] = sh.to
	}

	for id, pos := range current {
		if pos != current[id] {
			t.Fatalf("inconsistent final position for %s", id)
		}
	}
	for _, want := range []int{1, 2, 3} {
		if _, ok := occupied[want]; !ok {
			t.Fatalf("final positions not contiguous, missing %d: %v", want, occupied)
		}
	}
}

func TestPlanQueueShift_Empty(t *testing.T) {
	if shifts := planQueueShift(nil); len(shifts) != 0 {
		t.Fatalf("expected no shifts, got %v", shifts)
	}
}
