package progress

import (
	"time"

	"github.com/google/uuid"
)

// Recorder stamps events with a run ID and timestamp before forwarding them.
type Recorder struct {
	next  Emitter
	runID [16]byte
	now   func() time.Time
}

// NewRecorder wraps next for the run identified by runID. A nil now uses
// time.Now.
func NewRecorder(next Emitter, runID uuid.UUID, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{next: OrNop(next), runID: runID, now: now}
}

// Emit fills RunID and TS when unset and forwards the event.
func (r *Recorder) Emit(evt Event) {
	if evt.RunID == [16]byte{} {
		evt.RunID = r.runID
	}
	if evt.TS.IsZero() {
		evt.TS = r.now().UTC()
	}
	r.next.Emit(evt)
}
