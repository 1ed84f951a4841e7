package allocation

import (
	"time"

	"github.com/example/table-allocator/internal/policy"
)

// FilterInput bundles the availability check parameters.
type FilterInput struct {
	Tables []Table
	Busy   []BusyInterval
	Start  time.Time
	End    time.Time
	// Buffer is appended to each busy interval's end before comparison, so a
	// table stays blocked for turnover time after the previous party leaves.
	Buffer time.Duration
	// ExcludeBookingID ignores busy intervals belonging to this booking. Edit
	// flows use it so a booking does not conflict with its own assignment.
	ExcludeBookingID string
}

// FilterAvailable returns the tables free for the requested window. Overlap
// uses half-open semantics: an assignment whose buffered end touches the
// requested start does not block the table.
func FilterAvailable(in FilterInput) []Table {
	busyByTable := make(map[string][]BusyInterval, len(in.Busy))
	for _, interval := range in.Busy {
		if in.ExcludeBookingID != "" && interval.BookingID == in.ExcludeBookingID {
			continue
		}
		busyByTable[interval.TableID] = append(busyByTable[interval.TableID], interval)
	}

	available := make([]Table, 0, len(in.Tables))
	for _, table := range in.Tables {
		if tableBlocked(busyByTable[table.ID], in.Start, in.End, in.Buffer) {
			continue
		}
		available = append(available, table)
	}
	return available
}

func tableBlocked(intervals []BusyInterval, start, end time.Time, buffer time.Duration) bool {
	for _, interval := range intervals {
		if policy.Overlaps(start, end, interval.Start, interval.End.Add(buffer)) {
			return true
		}
	}
	return false
}
