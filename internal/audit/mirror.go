package audit

import (
	"context"

	"github.com/sirupsen/logrus"

	"carevault.org/internal/events"
	"carevault.org/internal/obs"
)

// Subscriber is the part of the event bus the mirror needs.
type Subscriber interface {
	Subscribe(ctx context.Context, kinds ...events.Kind) <-chan events.Event
}

// Mirror copies ledger audit events into the structured log so that the
// compliance trail also reaches log storage.
type Mirror struct {
	bus Subscriber
	log *logrus.Logger
}

func NewMirror(bus Subscriber, log *logrus.Logger) *Mirror {
	if log == nil {
		log = obs.Logger()
	}
	return &Mirror{bus: bus, log: log}
}

// Run logs audit events until ctx ends. It returns the number mirrored.
func (m *Mirror) Run(ctx context.Context) int {
	n := 0
	for evt := range m.bus.Subscribe(ctx, events.KindAudit) {
		m.log.WithFields(logrus.Fields{
			"type":      "ledger_audit",
			"seq":       evt.Fields["seq"],
			"action":    evt.Fields["action"],
			"actor":     evt.Actor,
			"record_id": evt.RecordID,
			"access_id": evt.AccessID,
			"digest":    evt.Fields["details_digest"],
			"at":        evt.At,
		}).Info("ledger_audit")
		n++
	}
	return n
}
