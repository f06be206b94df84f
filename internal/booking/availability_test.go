package booking

import "testing"

func TestSlotGrid_HourlySlots(t *testing.T) {
	grid, err := slotGrid("09:00:00", "12:00:00", 60)
	if err != nil {
		t.Fatalf("slotGrid: %v", err)
	}
	want := []string{"09:00:00", "10:00:00", "11:00:00"}
	if len(grid) != len(want) {
		t.Fatalf("expected %d slots, got %d: %v", len(want), len(grid), grid)
	}
	for i := range want {
		if grid[i] != want[i] {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i], grid[i])
		}
	}
}

func TestSlotGrid_LastSlotMustFit(t *testing.T) {
	// A 45-minute viewing starting 11:30 would run past 12:00.
	grid, err := slotGrid("09:00:00", "12:00:00", 45)
	if err != nil {
		t.Fatalf("slotGrid: %v", err)
	}
	if len(grid) != 4 {
		t.Fatalf("expected 4 slots, got %d: %v", len(grid), grid)
	}
	if grid[len(grid)-1] != "11:15:00" {
		t.Fatalf("expected last slot 11:15:00, got %s", grid[len(grid)-1])
	}
}

func TestSlotGrid_RejectsBadInput(t *testing.T) {
	if _, err := slotGrid("09:00:00", "12:00:00", 0); err == nil {
		t.Fatal("expected error for zero slot length")
	}
	if _, err := slotGrid("bogus", "12:00:00", 60); err == nil {
		t.Fatal("expected error for invalid start time")
	}
	grid, err := slotGrid("12:00:00", "09:00:00", 60)
	if err != nil {
		t.Fatalf("slotGrid: %v", err)
	}
	if grid != nil {
		t.Fatalf("expected no slots for inverted window, got %v", grid)
	}
}

func TestOpenSlots_FiltersHeldAndBlocked(t *testing.T) {
	grid := []string{"09:00:00", "10:00:00", "11:00:00", "12:00:00"}
	open := openSlots(grid, []string{"10:00:00"}, []string{"12:00:00", "10:00:00"})
	if len(open) != 2 {
		t.Fatalf("expected 2 open slots, got %d: %v", len(open), open)
	}
	if open[0] != "09:00:00" || open[1] != "11:00:00" {
		t.Fatalf("unexpected open slots: %v", open)
	}
}
