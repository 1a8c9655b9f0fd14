package ledger

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditEvents returns up to limit audit events with Seq greater than afterSeq.
func (l *Ledger) AuditEvents(afterSeq uint64, limit int) []AuditEvent {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if afterSeq >= uint64(len(l.audit)) {
		return []AuditEvent{}
	}
	end := min(afterSeq+uint64(limit), uint64(len(l.audit)))
	return append([]AuditEvent{}, l.audit[afterSeq:end]...)
}

// AuditLen returns the number of audit events.
func (l *Ledger) AuditLen() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.audit))
}
