// Package gateway provides the engine's persistence and alert outlets.
// The queued variants push jobs onto NATS for the worker; the direct
// variant writes straight through to Postgres and MinIO and is what
// the worker itself uses.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/storage"
)

// Direct writes audit records synchronously: snapshot to MinIO first,
// then the row referencing it.
type Direct struct {
	db      *storage.PostgresStore
	objects *storage.MinIOStore
}

func NewDirect(db *storage.PostgresStore, objects *storage.MinIOStore) *Direct {
	return &Direct{db: db, objects: objects}
}

func (d *Direct) AppendAccessLog(ctx context.Context, userID int64, status string, image []byte, confidence float32) error {
	ts := time.Now()

	var key string
	if len(image) > 0 {
		key = storage.SnapshotKey("access", ts)
		if err := d.objects.PutObject(ctx, key, image, "image/jpeg"); err != nil {
			// The row is still worth writing without its snapshot.
			observability.SideEffectFailures.WithLabelValues("snapshot").Inc()
			key = ""
		}
	}

	log := &models.AccessLog{
		Timestamp:   ts,
		UserID:      userID,
		Status:      status,
		SnapshotKey: key,
		Confidence:  &confidence,
	}
	if err := d.db.CreateAccessLog(ctx, log); err != nil {
		return fmt.Errorf("append access log: %w", err)
	}
	observability.AccessLogsWritten.Inc()
	return nil
}

func (d *Direct) AppendUnauthorized(ctx context.Context, image []byte, confidence float32) error {
	ts := time.Now()

	var key string
	if len(image) > 0 {
		key = storage.SnapshotKey("unauthorized", ts)
		if err := d.objects.PutObject(ctx, key, image, "image/jpeg"); err != nil {
			observability.SideEffectFailures.WithLabelValues("snapshot").Inc()
			key = ""
		}
	}

	at := &models.UnauthorizedAttempt{
		Timestamp:   ts,
		SnapshotKey: key,
		Confidence:  confidence,
	}
	if err := d.db.CreateUnauthorizedAttempt(ctx, at); err != nil {
		return fmt.Errorf("append unauthorized attempt: %w", err)
	}
	observability.UnauthorizedEscalations.Inc()
	return nil
}

// JobPublisher is the slice of the queue producer the queued gateway
// needs.
type JobPublisher interface {
	PublishJob(ctx context.Context, job models.SideEffectJob) error
}

// Queued hands audit records to the work queue so the tick loop never
// waits on Postgres, MinIO, or SMTP.
type Queued struct {
	producer JobPublisher
}

func NewQueued(producer JobPublisher) *Queued {
	return &Queued{producer: producer}
}

func (q *Queued) AppendAccessLog(ctx context.Context, userID int64, status string, image []byte, confidence float32) error {
	err := q.producer.PublishJob(ctx, models.SideEffectJob{
		Kind:       models.JobAccessLog,
		Timestamp:  time.Now(),
		UserID:     userID,
		Status:     status,
		Image:      image,
		Confidence: confidence,
	})
	if err != nil {
		observability.SideEffectFailures.WithLabelValues("publish").Inc()
		return fmt.Errorf("queue access log: %w", err)
	}
	return nil
}

func (q *Queued) AppendUnauthorized(ctx context.Context, image []byte, confidence float32) error {
	err := q.producer.PublishJob(ctx, models.SideEffectJob{
		Kind:       models.JobUnauthorized,
		Timestamp:  time.Now(),
		Image:      image,
		Confidence: confidence,
	})
	if err != nil {
		observability.SideEffectFailures.WithLabelValues("publish").Inc()
		return fmt.Errorf("queue unauthorized attempt: %w", err)
	}
	return nil
}

// SendUnauthorizedAlert queues an email alert job. Queued implements
// both the persistence gateway and the alert dispatcher so one
// producer covers all three side effects.
func (q *Queued) SendUnauthorizedAlert(ctx context.Context, image []byte, confidence float32) error {
	err := q.producer.PublishJob(ctx, models.SideEffectJob{
		Kind:       models.JobAlert,
		Timestamp:  time.Now(),
		Image:      image,
		Confidence: confidence,
	})
	if err != nil {
		observability.SideEffectFailures.WithLabelValues("publish").Inc()
		return fmt.Errorf("queue alert: %w", err)
	}
	return nil
}
