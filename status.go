package opsconsole

// Status is the health classification of one monitored dimension (CPU,
// memory) or of the whole system.
//
// Status is a string type so it serializes as-is to JSON and logs. The three
// severity levels are ordered success < warning < error; [StatusUnknown]
// marks absent data and sits outside that order.
type Status string

const (
	// StatusSuccess indicates the dimension is within normal bounds.
	StatusSuccess Status = "success"

	// StatusWarning indicates utilization above the warning threshold.
	StatusWarning Status = "warning"

	// StatusError indicates utilization above the error threshold.
	StatusError Status = "error"

	// StatusUnknown indicates there was no data to classify. It is never
	// treated as success.
	StatusUnknown Status = "unknown"
)

// String returns the string representation of the status.
// This implements the fmt.Stringer interface.
func (s Status) String() string {
	return string(s)
}

// Known reports whether s is one of the three severity levels.
func (s Status) Known() bool {
	return s.severity() > 0
}

// severity orders the known levels; unknown and invalid values are 0.
func (s Status) severity() int {
	switch s {
	case StatusSuccess:
		return 1
	case StatusWarning:
		return 2
	case StatusError:
		return 3
	}
	return 0
}

// Worst returns the most severe known status among statuses, or
// [StatusUnknown] when none is known.
func Worst(statuses ...Status) Status {
	worst := StatusUnknown
	for _, s := range statuses {
		if s.severity() > worst.severity() {
			worst = s
		}
	}
	return worst
}
