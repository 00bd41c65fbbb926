package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/twinforge/twinforge-backend/internal/config"
	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/repos"
	"github.com/twinforge/twinforge-backend/internal/sse"
	"github.com/twinforge/twinforge-backend/internal/types"
)

// LearningService turns accumulated owner feedback into candidate persona
// versions, gated by the regression suite. The active persona is only ever
// replaced after a candidate clears every threshold; a rejected candidate is
// held on its learning job for manual review and changes nothing.
type LearningService interface {
	MaybeTrigger(ctx context.Context, twinID uuid.UUID) (*types.LearningJob, error)
	Evaluate(ctx context.Context, job *types.LearningJob) error
	ListByTwin(ctx context.Context, twinID uuid.UUID, limit int) ([]*types.LearningJob, error)
	StartWorker(ctx context.Context)
}

type learningService struct {
	db       *gorm.DB
	log      *logger.Logger
	cfg      config.LearningConfig
	twins    repos.TwinRepo
	jobs     repos.LearningJobRepo
	events   repos.FeedbackEventRepo
	versions repos.PersonaVersionRepo
	compiler PersonaCompiler
	gate     RegressionGate
	hub      *sse.SSEHub
	now      func() time.Time
}

func NewLearningService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg config.LearningConfig,
	twins repos.TwinRepo,
	jobs repos.LearningJobRepo,
	events repos.FeedbackEventRepo,
	versions repos.PersonaVersionRepo,
	compiler PersonaCompiler,
	gate RegressionGate,
	hub *sse.SSEHub,
) LearningService {
	return &learningService{
		db:       db,
		log:      baseLog.With("service", "LearningService"),
		cfg:      cfg,
		twins:    twins,
		jobs:     jobs,
		events:   events,
		versions: versions,
		compiler: compiler,
		gate:     gate,
		hub:      hub,
		now:      time.Now,
	}
}

// MaybeTrigger creates a pending learning job when every trigger condition
// holds: no non-terminal job for the twin, cooldown elapsed since the last
// trigger, and at least MinEvents feedback events since then. Returns nil when
// any condition fails; that is the common case, not an error. The whole
// check-and-create runs under the twin row lock so two worker instances
// scanning the same twin cannot both trigger.
func (s *learningService) MaybeTrigger(ctx context.Context, twinID uuid.UUID) (*types.LearningJob, error) {
	if twinID == uuid.Nil {
		return nil, fmt.Errorf("missing twin id")
	}
	var job *types.LearningJob
	var count int64
	err := s.transact(ctx, func(tx *gorm.DB) error {
		if _, err := s.twins.LockByID(ctx, tx, twinID); err != nil {
			return err
		}
		active, err := s.jobs.GetActiveByTwin(ctx, tx, twinID)
		if err != nil {
			return err
		}
		if active != nil {
			return nil
		}
		since := time.Time{}
		latest, err := s.jobs.GetLatestByTwin(ctx, tx, twinID)
		if err != nil {
			return err
		}
		if latest != nil {
			if s.now().Sub(latest.TriggeredAt) < s.cfg.Cooldown {
				return nil
			}
			since = latest.TriggeredAt
		}
		count, err = s.events.CountByTwinSince(ctx, tx, twinID, since)
		if err != nil {
			return err
		}
		if count < int64(s.cfg.MinEvents) {
			return nil
		}
		candidate, err := s.buildCandidateSpec(ctx, twinID, since)
		if err != nil {
			return err
		}
		if candidate == nil {
			// No approved claims yet; nothing to learn from.
			return nil
		}
		specJSON, err := candidate.ToJSON()
		if err != nil {
			return err
		}
		job = &types.LearningJob{
			ID:            uuid.New(),
			TwinID:        twinID,
			CandidateSpec: specJSON,
			Status:        types.LearningPending,
			TriggeredAt:   s.now(),
		}
		_, err = s.jobs.Create(ctx, tx, []*types.LearningJob{job})
		return err
	})
	if err != nil || job == nil {
		return nil, err
	}
	s.log.Info("learning job triggered", "job_id", job.ID, "twin_id", twinID, "feedback_events", count)
	return job, nil
}

func (s *learningService) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// buildCandidateSpec recompiles the persona from approved claims and folds in
// a tally of recent feedback signals. Compilation here does not touch stored
// bio variants; only a published candidate does.
func (s *learningService) buildCandidateSpec(ctx context.Context, twinID uuid.UUID, since time.Time) (*PersonaSpec, error) {
	claims, sources, err := s.compiler.EligibleClaims(ctx, nil, twinID)
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return nil, nil
	}
	recent, err := s.events.GetByTwinSince(ctx, nil, twinID, since, 1000)
	if err != nil {
		return nil, err
	}
	tallies := make(map[string]int, 8)
	for _, ev := range recent {
		tallies[ev.Signal]++
	}
	spec := &PersonaSpec{
		TwinID:          twinID,
		Bios:            map[string]string{},
		Claims:          make([]ClaimSnapshot, 0, len(claims)),
		FeedbackTallies: tallies,
		CompiledAt:      s.now(),
	}
	for _, claim := range claims {
		label := ""
		if src := sources[claim.SourceID]; src != nil {
			label = src.Label
		}
		spec.Claims = append(spec.Claims, ClaimSnapshot{
			Text:        claim.Text,
			Confidence:  claim.Confidence,
			SourceLabel: label,
		})
	}
	return spec, nil
}

// Evaluate runs a pending learning job through the regression gate and lands
// it on published or rejected. Jobs already terminal are left alone.
func (s *learningService) Evaluate(ctx context.Context, job *types.LearningJob) error {
	if job == nil {
		return fmt.Errorf("missing learning job")
	}
	if types.LearningJobTerminal(job.Status) {
		return nil
	}
	log := s.log.With("job_id", job.ID, "twin_id", job.TwinID)
	if err := s.jobs.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status": types.LearningEvaluating,
	}); err != nil {
		return err
	}

	if !s.cfg.RunRegressionGate {
		// Skipping the gate is never a path to publication.
		return s.reject(ctx, job, "regression gate disabled by configuration", nil)
	}

	var candidate PersonaSpec
	if err := json.Unmarshal(job.CandidateSpec, &candidate); err != nil {
		return s.reject(ctx, job, fmt.Sprintf("decode candidate spec: %v", err), nil)
	}
	report, err := s.gate.Run(ctx, &candidate)
	if err != nil {
		return s.reject(ctx, job, fmt.Sprintf("regression gate error: %v", err), nil)
	}
	if !report.Promotable() {
		return s.reject(ctx, job, "regression thresholds not met", report)
	}
	if !s.cfg.AutoPublish {
		return s.reject(ctx, job, "held for review: auto-publish disabled", report)
	}

	if _, err := s.versions.Publish(ctx, nil, &types.PersonaVersion{
		TwinID:      job.TwinID,
		Spec:        job.CandidateSpec,
		PublishedBy: types.PersonaPublishedByLearning,
	}); err != nil {
		return s.reject(ctx, job, fmt.Sprintf("publish persona version: %v", err), report)
	}
	now := s.now()
	if err := s.jobs.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status":                      types.LearningPublished,
		"pass_rate":                   report.PassRate,
		"adversarial_pass_rate":       report.AdversarialPassRate,
		"channel_isolation_pass_rate": report.ChannelIsolationPassRate,
		"decided_at":                  &now,
	}); err != nil {
		return err
	}
	s.broadcast(job.TwinID, sse.SSEEventLearningPublished, map[string]any{
		"job_id":    job.ID,
		"pass_rate": report.PassRate,
	})
	log.Info("learning job published", "pass_rate", report.PassRate)
	return nil
}

func (s *learningService) reject(ctx context.Context, job *types.LearningJob, reason string, report *RegressionReport) error {
	now := s.now()
	updates := map[string]interface{}{
		"status":        types.LearningRejected,
		"reject_reason": reason,
		"decided_at":    &now,
	}
	if report != nil {
		updates["pass_rate"] = report.PassRate
		updates["adversarial_pass_rate"] = report.AdversarialPassRate
		updates["channel_isolation_pass_rate"] = report.ChannelIsolationPassRate
	}
	if err := s.jobs.UpdateFields(ctx, nil, job.ID, updates); err != nil {
		return err
	}
	s.broadcast(job.TwinID, sse.SSEEventLearningRejected, map[string]any{
		"job_id": job.ID,
		"reason": reason,
	})
	s.log.Info("learning job rejected", "job_id", job.ID, "twin_id", job.TwinID, "reason", reason)
	return nil
}

func (s *learningService) broadcast(twinID uuid.UUID, event sse.SSEEvent, data any) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(sse.SSEMessage{
		Channel: sse.TwinChannel(twinID),
		Event:   event,
		Data:    data,
	})
}

func (s *learningService) ListByTwin(ctx context.Context, twinID uuid.UUID, limit int) ([]*types.LearningJob, error) {
	return s.jobs.ListByTwin(ctx, nil, twinID, limit)
}

const learningScanInterval = 30 * time.Second

func (s *learningService) StartWorker(ctx context.Context) {
	ticker := time.NewTicker(learningScanInterval)
	defer ticker.Stop()
	s.log.Info("learning worker started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("learning worker stopped")
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

func (s *learningService) scanOnce(ctx context.Context) {
	cutoff := s.now().Add(-24 * time.Hour)
	twins, err := s.events.TwinsWithEventsSince(ctx, nil, cutoff)
	if err != nil {
		s.log.Error("scan twins with feedback failed", "error", err)
		return
	}
	for _, twinID := range twins {
		job, err := s.MaybeTrigger(ctx, twinID)
		if err != nil {
			s.log.Error("learning trigger failed", "twin_id", twinID, "error", err)
			continue
		}
		if job == nil {
			continue
		}
		if err := s.Evaluate(ctx, job); err != nil {
			s.log.Error("learning evaluation failed", "job_id", job.ID, "error", err)
		}
	}
}
