package ledger

import (
	"iter"
	"slices"
)

// Derived views. Each one snapshots an append-only index under the read lock
// and re-checks current state per element as the sequence is consumed, so a
// sequence can be ranged over again to observe newer state.

// ActivePatientRecords yields the ids of owner's records that are still active.
func (l *Ledger) ActivePatientRecords(owner Address) iter.Seq[RecordID] {
	return func(yield func(RecordID) bool) {
		for _, id := range l.GetPatientRecordIDs(owner) {
			l.mu.RLock()
			rec := l.record(id)
			active := rec != nil && rec.Active
			l.mu.RUnlock()
			if active && !yield(id) {
				return
			}
		}
	}
}

// GetActivePatientRecordIDs collects ActivePatientRecords.
func (l *Ledger) GetActivePatientRecordIDs(owner Address) []RecordID {
	return collect(l.ActivePatientRecords(owner))
}

// PendingRequests yields grants for patient still awaiting a decision.
// Requests superseded by a newer request for the same pair are skipped.
func (l *Ledger) PendingRequests(patient Address) iter.Seq[AccessGrant] {
	return func(yield func(AccessGrant) bool) {
		l.mu.RLock()
		ids := slices.Clone(l.patientRequests[patient])
		l.mu.RUnlock()

		for _, id := range ids {
			l.mu.RLock()
			g := l.grant(id)
			var pending bool
			var snapshot AccessGrant
			if g != nil {
				pending = g.Status == AccessRequested && l.pairs[pairKey{record: g.RecordID, doctor: g.Doctor}] == id
				snapshot = *g
			}
			l.mu.RUnlock()
			if pending && !yield(snapshot) {
				return
			}
		}
	}
}

// GetPendingRequests collects PendingRequests.
func (l *Ledger) GetPendingRequests(patient Address) []AccessGrant {
	return collect(l.PendingRequests(patient))
}

// DoctorAccessibleRecords yields each record doctor can currently open, once.
// A doctor who is no longer verified can open nothing.
func (l *Ledger) DoctorAccessibleRecords(doctor Address) iter.Seq[RecordID] {
	return func(yield func(RecordID) bool) {
		l.mu.RLock()
		ids := slices.Clone(l.doctorRecords[doctor])
		verified := l.isVerifiedDoctor(doctor)
		l.mu.RUnlock()
		if !verified {
			return
		}

		seen := make(map[RecordID]struct{}, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if l.HasActiveAccess(id, doctor) && !yield(id) {
				return
			}
		}
	}
}

// GetDoctorAccessibleRecords collects DoctorAccessibleRecords.
func (l *Ledger) GetDoctorAccessibleRecords(doctor Address) []RecordID {
	return collect(l.DoctorAccessibleRecords(doctor))
}

// collect is slices.Collect with a non-nil result, which keeps JSON output as [].
func collect[T any](seq iter.Seq[T]) []T {
	out := []T{}
	for v := range seq {
		out = append(out, v)
	}
	return out
}
