package opsconsole

import (
	"time"

	"github.com/jpalmerr/opsconsole/internal/poller"
)

// Phase tells a client which panel to show.
type Phase string

const (
	// PhaseLoading: the first fetch is still in flight.
	PhaseLoading Phase = "loading"

	// PhaseError: nothing has been fetched successfully and the last
	// attempt failed.
	PhaseError Phase = "error"

	// PhaseEmpty: no data and no fetch in flight, e.g. before anyone
	// subscribed.
	PhaseEmpty Phase = "empty"

	// PhaseReady: a snapshot is available. It may be stale; Error then
	// reports why it was not refreshed.
	PhaseReady Phase = "ready"
)

// View is the JSON document served to dashboard clients for one state.
type View struct {
	Phase     Phase      `json:"phase"`
	Loading   bool       `json:"loading"`
	Error     string     `json:"error,omitempty"`
	Summary   *Summary   `json:"summary,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// NewView renders a broadcaster state. The last good snapshot wins over a
// later failure.
func NewView(st poller.State) View {
	v := View{Loading: st.Loading}
	if st.Err != nil {
		v.Error = st.Err.Error()
	}

	switch {
	case st.Metrics != nil:
		v.Phase = PhaseReady
		summary := Summarize(st.Metrics)
		v.Summary = &summary
		updated := st.UpdatedAt
		v.UpdatedAt = &updated
	case st.Loading:
		v.Phase = PhaseLoading
	case st.Err != nil:
		v.Phase = PhaseError
	default:
		v.Phase = PhaseEmpty
	}
	return v
}
