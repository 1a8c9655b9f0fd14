package ledger

import "time"

// Authorization predicates shared by every component. The lowercase forms
// expect l.mu to be held; the exported forms take the read lock.

func (l *Ledger) isPatient(addr Address) bool {
	id, ok := l.identities[addr]
	return ok && id.Role == RolePatient
}

func (l *Ledger) isVerifiedDoctor(addr Address) bool {
	id, ok := l.identities[addr]
	return ok && id.Role == RoleDoctor && id.Status == StatusVerified
}

func (l *Ledger) isAdministrator(addr Address) bool {
	return l.admin != "" && addr == l.admin
}

func (l *Ledger) isOwnerOf(addr Address, id RecordID) bool {
	rec := l.record(id)
	return rec != nil && rec.Owner == addr
}

// isGranteeOf reports whether addr holds a usable grant for the record.
func (l *Ledger) isGranteeOf(addr Address, id RecordID, now time.Time) bool {
	g := l.grant(l.pairs[pairKey{record: id, doctor: addr}])
	return g != nil && g.Usable(now)
}

func (l *Ledger) record(id RecordID) *Record {
	if id == 0 || uint64(id) > uint64(len(l.records)) {
		return nil
	}
	return &l.records[id-1]
}

func (l *Ledger) grant(id AccessID) *AccessGrant {
	if id == 0 || uint64(id) > uint64(len(l.grants)) {
		return nil
	}
	return &l.grants[id-1]
}

// IsPatient reports whether addr is registered as a patient.
func (l *Ledger) IsPatient(addr Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isPatient(addr)
}

// IsVerifiedDoctor reports whether addr is a doctor with Verified status.
func (l *Ledger) IsVerifiedDoctor(addr Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isVerifiedDoctor(addr)
}

// IsOwnerOf reports whether addr owns record id.
func (l *Ledger) IsOwnerOf(addr Address, id RecordID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isOwnerOf(addr, id)
}

// IsGranteeOf reports whether addr currently holds usable access to record id.
func (l *Ledger) IsGranteeOf(addr Address, id RecordID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.isGranteeOf(addr, id, l.Now())
}
