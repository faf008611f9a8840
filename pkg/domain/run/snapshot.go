package run

import "time"

// Snapshot is the persisted view of one run, written by the orchestrator
// after every observed event and read by the status and result APIs.
type Snapshot struct {
	ID        string             `json:"id"`
	Workflow  string             `json:"workflow"`
	Status    Status             `json:"status"`
	Items     map[string]Outcome `json:"items"`
	Crashes   []CrashDiagnostic  `json:"crashes,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   *time.Time         `json:"ended_at,omitempty"`
}

// Clone returns a deep copy safe to hand across goroutines.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Items = make(map[string]Outcome, len(s.Items))
	for name, o := range s.Items {
		oc := o
		oc.Outputs = cloneMap(o.Outputs)
		out.Items[name] = oc
	}
	if s.Crashes != nil {
		out.Crashes = append([]CrashDiagnostic(nil), s.Crashes...)
	}
	if s.EndedAt != nil {
		ended := *s.EndedAt
		out.EndedAt = &ended
	}
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
