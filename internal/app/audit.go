package app

import (
	"context"
	"time"

	"sla_engine/internal/domain/audit"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// auditor stamps and writes audit entries. A failed write is logged and never returned.
type auditor struct {
	w      audit.Writer
	logger *logrus.Entry
}

func (a auditor) record(ctx context.Context, e *audit.Entry, now time.Time) {
	if a.w == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if err := a.w.Write(context.WithoutCancel(ctx), e); err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"action":    e.Action,
			"entity_id": e.EntityID,
		}).Warn("Failed to write audit entry")
	}
}
