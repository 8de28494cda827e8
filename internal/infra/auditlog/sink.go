package auditlog

import (
	"context"
	"errors"
	"fmt"

	"sla_engine/internal/domain/audit"

	"github.com/sirupsen/logrus"
)

// LogWriter writes audit entries to the structured logger.
type LogWriter struct {
	logger *logrus.Entry
}

func NewLogWriter(logger *logrus.Entry) *LogWriter {
	return &LogWriter{logger: logger.WithField("component", "audit")}
}

func (w *LogWriter) Write(_ context.Context, e *audit.Entry) error {
	fields := logrus.Fields{
		"audit_id":  e.ID,
		"action":    e.Action,
		"timestamp": e.Timestamp,
	}
	if e.TickID != "" {
		fields["tick_id"] = e.TickID
	}
	if e.EntityType != "" {
		fields["entity_type"] = e.EntityType
		fields["entity_id"] = e.EntityID
	}
	if e.UserID != 0 {
		fields["user_id"] = e.UserID
	}
	for k, v := range e.Details {
		fields["detail_"+k] = v
	}
	w.logger.WithFields(fields).Info("audit")
	return nil
}

func (w *LogWriter) Close() error { return nil }

// MultiWriter writes every entry to all writers, even when some of them fail.
type MultiWriter struct {
	writers []audit.Writer
}

func NewMultiWriter(writers ...audit.Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

func (m *MultiWriter) Write(ctx context.Context, e *audit.Entry) error {
	var errs []error
	for i, w := range m.writers {
		if err := w.Write(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("audit writer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiWriter) Close() error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
