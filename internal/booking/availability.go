package booking

import (
	"fmt"
	"time"
)

// slotGrid returns the viewing times a property offers on one day:
// [start, end) stepped by slotMinutes, formatted HH:MM:SS.
func slotGrid(viewingStart, viewingEnd string, slotMinutes int) ([]string, error) {
	if slotMinutes <= 0 {
		return nil, fmt.Errorf("slot grid: slot length must be positive, got %d", slotMinutes)
	}

	start, err := time.Parse(TimeFormat, viewingStart)
	if err != nil {
		return nil, fmt.Errorf("slot grid: invalid viewing start %q", viewingStart)
	}
	end, err := time.Parse(TimeFormat, viewingEnd)
	if err != nil {
		return nil, fmt.Errorf("slot grid: invalid viewing end %q", viewingEnd)
	}
	if !end.After(start) {
		return nil, nil
	}

	step := time.Duration(slotMinutes) * time.Minute

	var times []string
	for t := start; !t.Add(step).After(end); t = t.Add(step) {
		times = append(times, t.Format(TimeFormat))
	}
	return times, nil
}

// openSlots filters a grid down to the times that are neither held by an
// active booking nor blocked by an agent.
func openSlots(grid, held, blocked []string) []string {
	closed := make(map[string]struct{}, len(held)+len(blocked))
	for _, t := range held {
		closed[t] = struct{}{}
	}
	for _, t := range blocked {
		closed[t] = struct{}{}
	}

	var open []string
	for _, t := range grid {
		if _, ok := closed[t]; !ok {
			open = append(open, t)
		}
	}
	return open
}
