package model

// SecurityChanges is the added/removed delta produced by universe selection
// for a single time slice.
type SecurityChanges struct {
	Added   []SubscriptionConfig
	Removed []SubscriptionConfig
}

// IsEmpty reports whether neither additions nor removals occurred.
func (s SecurityChanges) IsEmpty() bool {
	return len(s.Added) == 0 && len(s.Removed) == 0
}

// Merge combines two consecutive SecurityChanges, as the time-slice
// assembler does when a delta is queued while another is still pending.
func (s SecurityChanges) Merge(o SecurityChanges) SecurityChanges {
	return SecurityChanges{
		Added:   append(append([]SubscriptionConfig{}, s.Added...), o.Added...),
		Removed: append(append([]SubscriptionConfig{}, s.Removed...), o.Removed...),
	}
}
