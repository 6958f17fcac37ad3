// Package retention purges old conversations and removes duplicate medical
// records, on demand or on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	intakeotel "github.com/clinicalintel/intake/internal/otel"
)

var tracer = intakeotel.Tracer("github.com/clinicalintel/intake/internal/retention")

// Store is the persistence a retention pass works on.
type Store interface {
	PurgeConversations(ctx context.Context, cutoff time.Time) (int64, error)
	DedupRecords(ctx context.Context) (int64, error)
}

// Report summarizes one retention pass.
type Report struct {
	// Cutoff is nil when conversations are kept forever.
	Cutoff              *time.Time `json:"cutoff,omitempty"`
	ConversationsPurged int64      `json:"conversations_purged"`
	RecordsRemoved      int64      `json:"duplicate_records_removed"`
}

// Run purges conversations older than days before now and de-duplicates
// medical records. days == 0 keeps conversations forever.
func Run(ctx context.Context, store Store, days int, now time.Time) (Report, error) {
	ctx, span := tracer.Start(ctx, "retention.run")
	defer span.End()

	var rep Report
	if days < 0 {
		return rep, fmt.Errorf("retention days must not be negative, got %d", days)
	}
	if days > 0 {
		cutoff := now.AddDate(0, 0, -days).UTC()
		rep.Cutoff = &cutoff
		n, err := store.PurgeConversations(ctx, cutoff)
		if err != nil {
			return rep, err
		}
		rep.ConversationsPurged = n
	}
	n, err := store.DedupRecords(ctx)
	if err != nil {
		return rep, err
	}
	rep.RecordsRemoved = n

	span.SetAttributes(
		attribute.Int64("retention.conversations_purged", rep.ConversationsPurged),
		attribute.Int64("retention.records_removed", rep.RecordsRemoved),
	)
	log.Info().
		Int("retention_days", days).
		Int64("conversations_purged", rep.ConversationsPurged).
		Int64("duplicate_records_removed", rep.RecordsRemoved).
		Func(intakeotel.LogTraceFields(ctx)).
		Msg("retention_completed")
	return rep, nil
}

// Scheduler runs retention passes on a cron schedule.
type Scheduler struct {
	cron  *cron.Cron
	store Store
	days  int
	now   func() time.Time
}

// NewScheduler creates a scheduler over store.
// Cron expressions use the standard 5-field format: minute hour day-of-month month day-of-week
// (e.g. "0 3 * * *" for 03:00 daily).
func NewScheduler(store Store, days int) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		store: store,
		days:  days,
		now:   time.Now,
	}
}

// Register adds a retention pass on a 5-field cron schedule.
func (s *Scheduler) Register(schedule string) error {
	_, err := s.cron.AddFunc(schedule, s.runOnce)
	if err != nil {
		return fmt.Errorf("registering retention cron %q: %w", schedule, err)
	}
	return nil
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	log.Info().Int("retention_days", s.days).Msg("scheduled_retention_fired")
	if _, err := Run(ctx, s.store, s.days, s.now()); err != nil {
		log.Error().Err(err).Msg("scheduled_retention_failed")
	}
}

// Start begins executing registered cron jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered cron entries (for testing).
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
