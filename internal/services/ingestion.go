package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/twinforge/twinforge-backend/internal/config"
	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/repos"
	"github.com/twinforge/twinforge-backend/internal/sse"
	"github.com/twinforge/twinforge-backend/internal/types"
)

// IngestionService owns the source-to-persona pipeline. A submitted job walks
// pending -> processing -> extracting_claims -> compiling_persona and lands on
// completed, claims_ready, or failed. Stage transitions go through
// UpdateFieldsUnlessTerminal so a cancel racing the worker always wins.
type IngestionService interface {
	Submit(ctx context.Context, twinID uuid.UUID, inputs []SourceInput) (*types.IngestionJob, error)
	Poll(ctx context.Context, jobID uuid.UUID) (*types.IngestionJob, error)
	Cancel(ctx context.Context, jobID uuid.UUID) error
	StartWorker(ctx context.Context)
}

type ingestionService struct {
	db       *gorm.DB
	log      *logger.Logger
	cfg      config.IngestionConfig
	twins    repos.TwinRepo
	sources  repos.SourceRepo
	jobs     repos.IngestionJobRepo
	claims   repos.ClaimRepo
	versions repos.PersonaVersionRepo
	srcSvc   SourceService
	provider SourceContentProvider
	extract  ClaimExtractor
	compiler PersonaCompiler
	hub      *sse.SSEHub
}

func NewIngestionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg config.IngestionConfig,
	twins repos.TwinRepo,
	sources repos.SourceRepo,
	jobs repos.IngestionJobRepo,
	claims repos.ClaimRepo,
	versions repos.PersonaVersionRepo,
	srcSvc SourceService,
	provider SourceContentProvider,
	extract ClaimExtractor,
	compiler PersonaCompiler,
	hub *sse.SSEHub,
) IngestionService {
	return &ingestionService{
		db:       db,
		log:      baseLog.With("service", "IngestionService"),
		cfg:      cfg,
		twins:    twins,
		sources:  sources,
		jobs:     jobs,
		claims:   claims,
		versions: versions,
		srcSvc:   srcSvc,
		provider: provider,
		extract:  extract,
		compiler: compiler,
		hub:      hub,
	}
}


func (s *ingestionService) Submit(ctx context.Context, twinID uuid.UUID, inputs []SourceInput) (*types.IngestionJob, error) {
	if twinID == uuid.Nil {
		return nil, fmt.Errorf("missing twin id")
	}
	// The single-active-job check runs under the twin row lock, inside the
	// same transaction that creates the job. Two concurrent submissions for
	// one twin serialize here; the loser sees the winner's job.
	var job *types.IngestionJob
	err := s.transact(ctx, func(tx *gorm.DB) error {
		twin, err := s.twins.LockByID(ctx, tx, twinID)
		if err != nil {
			return err
		}
		if twin == nil {
			return fmt.Errorf("twin %s not found", twinID)
		}
		active, err := s.jobs.GetActiveByTwin(ctx, tx, twinID)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("twin %s already has an active ingestion job %s", twinID, active.ID)
		}
		job = &types.IngestionJob{
			ID:           uuid.New(),
			TwinID:       twinID,
			Status:       types.IngestionStatusPending,
			TotalSources: len(inputs),
		}
		if _, err := s.jobs.Create(ctx, tx, []*types.IngestionJob{job}); err != nil {
			return err
		}
		jobID := job.ID
		_, err = s.srcSvc.Register(ctx, tx, twinID, &jobID, inputs)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("ingestion job submitted", "job_id", job.ID, "twin_id", twinID, "total_sources", job.TotalSources)
	return job, nil
}

func (s *ingestionService) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *ingestionService) Poll(ctx context.Context, jobID uuid.UUID) (*types.IngestionJob, error) {
	job, err := s.jobs.GetByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("ingestion job %s not found", jobID)
	}
	return job, nil
}

func (s *ingestionService) Cancel(ctx context.Context, jobID uuid.UUID) error {
	ok, err := s.jobs.UpdateFieldsUnlessTerminal(ctx, nil, jobID, map[string]interface{}{
		"status":        types.IngestionStatusFailed,
		"error_message": "cancelled",
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ingestion job %s is already terminal", jobID)
	}
	s.log.Info("ingestion job cancelled", "job_id", jobID)
	return nil
}

const (
	ingestionPollInterval  = 1 * time.Second
	ingestionMaxAttempts   = 3
	ingestionRetryDelay    = 15 * time.Second
	ingestionStaleRunning  = 5 * time.Minute
	ingestionHeartbeatEach = 10 * time.Second
)

func (s *ingestionService) StartWorker(ctx context.Context) {
	ticker := time.NewTicker(ingestionPollInterval)
	defer ticker.Stop()
	s.log.Info("ingestion worker started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("ingestion worker stopped")
			return
		case <-ticker.C:
			job, err := s.jobs.ClaimNextRunnable(ctx, nil, ingestionMaxAttempts, ingestionRetryDelay, ingestionStaleRunning)
			if err != nil {
				s.log.Error("claim runnable ingestion job failed", "error", err)
				continue
			}
			if job == nil {
				continue
			}
			s.processJob(ctx, job)
		}
	}
}

// advance moves the job forward unless it has gone terminal underneath us
// (cancel, or a competing worker). Returning false aborts the pipeline run
// without touching the row.
func (s *ingestionService) advance(ctx context.Context, jobID uuid.UUID, updates map[string]interface{}) bool {
	ok, err := s.jobs.UpdateFieldsUnlessTerminal(ctx, nil, jobID, updates)
	if err != nil {
		s.log.Error("advance ingestion job failed", "job_id", jobID, "error", err)
		return false
	}
	if !ok {
		s.log.Info("ingestion job went terminal mid-run, abandoning", "job_id", jobID)
	}
	return ok
}

func (s *ingestionService) fail(ctx context.Context, job *types.IngestionJob, msg string) {
	now := time.Now()
	if s.advance(ctx, job.ID, map[string]interface{}{
		"status":        types.IngestionStatusFailed,
		"error_message": msg,
		"last_error_at": &now,
	}) {
		s.broadcast(job.TwinID, sse.SSEEventIngestionFailed, map[string]any{
			"job_id": job.ID,
			"error":  msg,
		})
	}
}

func (s *ingestionService) broadcast(twinID uuid.UUID, event sse.SSEEvent, data any) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(sse.SSEMessage{
		Channel: sse.TwinChannel(twinID),
		Event:   event,
		Data:    data,
	})
}

type sourceResult struct {
	source *types.Source
	claims []*types.Claim
	err    error
}

func (s *ingestionService) processJob(ctx context.Context, job *types.IngestionJob) {
	log := s.log.With("job_id", job.ID, "twin_id", job.TwinID)
	log.Info("processing ingestion job", "attempt", job.Attempts)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go s.heartbeatLoop(hbCtx, job.ID)

	if !s.advance(ctx, job.ID, map[string]interface{}{"status": types.IngestionStatusProcessing}) {
		return
	}

	sources, err := s.sources.GetByJobID(ctx, nil, job.ID)
	if err != nil {
		s.fail(ctx, job, fmt.Sprintf("load sources: %v", err))
		return
	}
	if len(sources) == 0 {
		s.fail(ctx, job, "no sources attached to job")
		return
	}

	results := make([]sourceResult, len(sources))
	var progressMu sync.Mutex
	progressed := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallelSources)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			results[i] = s.processSource(gctx, src)
			// Per-source failures are recorded, never propagated: one bad
			// source must not sink the rest of the batch. The processed count
			// is written as each source lands so pollers see live progress;
			// the write happens under the mutex to keep it monotonic.
			progressMu.Lock()
			progressed++
			_, _ = s.jobs.UpdateFieldsUnlessTerminal(ctx, nil, job.ID, map[string]interface{}{
				"processed_sources": progressed,
			})
			progressMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	processed := 0
	failedSources := make([]string, 0)
	allClaims := make([]*types.Claim, 0)
	for _, res := range results {
		processed++
		if res.err != nil {
			failedSources = append(failedSources, fmt.Sprintf("%s: %v", res.source.ID, res.err))
			continue
		}
		allClaims = append(allClaims, res.claims...)
	}
	if !s.advance(ctx, job.ID, map[string]interface{}{
		"status":            types.IngestionStatusExtracting,
		"processed_sources": processed,
	}) {
		return
	}
	s.broadcast(job.TwinID, sse.SSEEventIngestionProgress, map[string]any{
		"job_id":            job.ID,
		"status":            types.IngestionStatusExtracting,
		"processed_sources": processed,
		"total_sources":     len(sources),
	})

	if len(allClaims) > 0 {
		if _, err := s.claims.Create(ctx, nil, allClaims); err != nil {
			s.fail(ctx, job, fmt.Sprintf("persist claims: %v", err))
			return
		}
	}
	if len(failedSources) == len(sources) {
		s.fail(ctx, job, "all sources failed: "+strings.Join(failedSources, "; "))
		return
	}

	if !s.advance(ctx, job.ID, map[string]interface{}{
		"status":           types.IngestionStatusCompiling,
		"extracted_claims": len(allClaims),
	}) {
		return
	}

	variants, spec, err := s.compiler.Compile(ctx, job.TwinID)
	if err != nil {
		s.fail(ctx, job, (&CompilationError{TwinID: job.TwinID, Err: err}).Error())
		return
	}

	errMsg := ""
	if len(failedSources) > 0 {
		errMsg = fmt.Sprintf("%d source(s) failed: %s", len(failedSources), strings.Join(failedSources, "; "))
	}

	if spec == nil {
		// Nothing eligible to compile yet: the claims sit pending review and the
		// job parks on claims_ready rather than completed.
		if s.advance(ctx, job.ID, map[string]interface{}{
			"status":        types.IngestionStatusClaimsReady,
			"error_message": errMsg,
		}) {
			s.broadcast(job.TwinID, sse.SSEEventIngestionCompleted, map[string]any{
				"job_id": job.ID,
				"status": types.IngestionStatusClaimsReady,
			})
			log.Info("ingestion job parked awaiting claim review", "extracted_claims", len(allClaims))
		}
		return
	}

	specJSON, err := spec.ToJSON()
	if err != nil {
		s.fail(ctx, job, fmt.Sprintf("encode persona spec: %v", err))
		return
	}
	if _, err := s.versions.Publish(ctx, nil, &types.PersonaVersion{
		TwinID:      job.TwinID,
		Spec:        specJSON,
		PublishedBy: types.PersonaPublishedByIngestion,
	}); err != nil {
		s.fail(ctx, job, fmt.Sprintf("publish persona version: %v", err))
		return
	}

	if s.advance(ctx, job.ID, map[string]interface{}{
		"status":        types.IngestionStatusCompleted,
		"error_message": errMsg,
	}) {
		s.broadcast(job.TwinID, sse.SSEEventIngestionCompleted, map[string]any{
			"job_id":       job.ID,
			"status":       types.IngestionStatusCompleted,
			"bio_variants": len(variants),
		})
		log.Info("ingestion job completed", "bio_variants", len(variants), "failed_sources", len(failedSources))
	}
}

func (s *ingestionService) processSource(ctx context.Context, src *types.Source) sourceResult {
	text, attempts, err := s.fetchWithRetry(ctx, src)
	if err != nil {
		_ = s.sources.UpdateFields(ctx, nil, src.ID, map[string]interface{}{
			"fetch_status":     types.SourceFetchFailed,
			"fetch_attempts":   attempts,
			"last_fetch_error": err.Error(),
		})
		return sourceResult{source: src, err: err}
	}
	if err := s.sources.UpdateFields(ctx, nil, src.ID, map[string]interface{}{
		"fetch_status":   types.SourceFetchFetched,
		"fetch_attempts": attempts,
	}); err != nil {
		return sourceResult{source: src, err: err}
	}
	claims, err := s.extract.Extract(ctx, src, text)
	if err != nil {
		return sourceResult{source: src, err: err}
	}
	return sourceResult{source: src, claims: claims}
}

func (s *ingestionService) fetchWithRetry(ctx context.Context, src *types.Source) (string, int, error) {
	// Config loading clamps this too; guard again so a zero budget still
	// attempts once instead of returning a SourceFetchError wrapping nil.
	retries := s.cfg.FetchRetries
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
		text, err := s.provider.Fetch(attemptCtx, src)
		cancel()
		if err == nil {
			return text, attempt, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", attempt, &SourceFetchError{SourceID: src.ID, Attempts: attempt, Err: lastErr}
		}
		if attempt < retries {
			select {
			case <-ctx.Done():
				return "", attempt, &SourceFetchError{SourceID: src.ID, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(s.cfg.FetchBackoff * time.Duration(attempt)):
			}
		}
	}
	return "", retries, &SourceFetchError{SourceID: src.ID, Attempts: retries, Err: lastErr}
}

func (s *ingestionService) heartbeatLoop(ctx context.Context, jobID uuid.UUID) {
	ticker := time.NewTicker(ingestionHeartbeatEach)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.jobs.Heartbeat(ctx, nil, jobID); err != nil {
				s.log.Error("ingestion heartbeat failed", "job_id", jobID, "error", err)
			}
		}
	}
}
