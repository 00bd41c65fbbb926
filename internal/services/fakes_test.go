package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/types"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

type fakeTwinRepo struct {
	mu        sync.Mutex
	twins     map[uuid.UUID]*types.Twin
	lockCalls int
}

func newFakeTwinRepo() *fakeTwinRepo {
	return &fakeTwinRepo{twins: map[uuid.UUID]*types.Twin{}}
}

func (f *fakeTwinRepo) Create(_ context.Context, _ *gorm.DB, twins []*types.Twin) ([]*types.Twin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tw := range twins {
		f.twins[tw.ID] = tw
	}
	return twins, nil
}

func (f *fakeTwinRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.Twin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.twins[id], nil
}

func (f *fakeTwinRepo) LockByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.Twin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockCalls++
	return f.twins[id], nil
}

func (f *fakeTwinRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]*types.Twin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.Twin{}
	for _, id := range ids {
		if tw, ok := f.twins[id]; ok {
			out = append(out, tw)
		}
	}
	return out, nil
}

func (f *fakeTwinRepo) GetByShareToken(_ context.Context, _ *gorm.DB, token string) (*types.Twin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tw := range f.twins {
		if tw.ShareToken != "" && tw.ShareToken == token {
			return tw, nil
		}
	}
	return nil, nil
}

type fakeSourceRepo struct {
	mu      sync.Mutex
	sources map[uuid.UUID]*types.Source
}

func newFakeSourceRepo() *fakeSourceRepo {
	return &fakeSourceRepo{sources: map[uuid.UUID]*types.Source{}}
}

func (f *fakeSourceRepo) Create(_ context.Context, _ *gorm.DB, sources []*types.Source) ([]*types.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range sources {
		f.sources[s.ID] = s
	}
	return sources, nil
}

func (f *fakeSourceRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]*types.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.Source{}
	for _, id := range ids {
		if s, ok := f.sources[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSourceRepo) GetByTwinID(_ context.Context, _ *gorm.DB, twinID uuid.UUID) ([]*types.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.Source{}
	for _, s := range f.sources {
		if s.TwinID == twinID {
			out = append(out, s)
		}
	}
	sortSources(out)
	return out, nil
}

func (f *fakeSourceRepo) GetByJobID(_ context.Context, _ *gorm.DB, jobID uuid.UUID) ([]*types.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.Source{}
	for _, s := range f.sources {
		if s.IngestionJobID != nil && *s.IngestionJobID == jobID {
			out = append(out, s)
		}
	}
	sortSources(out)
	return out, nil
}

func sortSources(out []*types.Source) {
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
}

func (f *fakeSourceRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sources[id]
	if !ok {
		return fmt.Errorf("source %s not found", id)
	}
	if v, ok := updates["fetch_status"]; ok {
		s.FetchStatus = v.(string)
	}
	if v, ok := updates["fetch_attempts"]; ok {
		s.FetchAttempts = v.(int)
	}
	if v, ok := updates["last_fetch_error"]; ok {
		s.LastFetchError = v.(string)
	}
	return nil
}

func (f *fakeSourceRepo) ConfirmIdentity(_ context.Context, _ *gorm.DB, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sources[id]
	if !ok {
		return fmt.Errorf("source %s not found", id)
	}
	s.IdentityConfirmed = true
	return nil
}

type fakeIngestionJobRepo struct {
	mu               sync.Mutex
	jobs             map[uuid.UUID]*types.IngestionJob
	processedUpdates []int
}

func newFakeIngestionJobRepo() *fakeIngestionJobRepo {
	return &fakeIngestionJobRepo{jobs: map[uuid.UUID]*types.IngestionJob{}}
}

func (f *fakeIngestionJobRepo) Create(_ context.Context, _ *gorm.DB, jobs []*types.IngestionJob) ([]*types.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range jobs {
		f.jobs[j.ID] = j
	}
	return jobs, nil
}

func (f *fakeIngestionJobRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id], nil
}

func (f *fakeIngestionJobRepo) GetActiveByTwin(_ context.Context, _ *gorm.DB, twinID uuid.UUID) (*types.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.TwinID == twinID && !types.IngestionJobTerminal(j.Status) {
			return j, nil
		}
	}
	return nil, nil
}

func (f *fakeIngestionJobRepo) ClaimNextRunnable(_ context.Context, _ *gorm.DB, _ int, _ time.Duration, _ time.Duration) (*types.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.Status == types.IngestionStatusPending {
			j.Status = types.IngestionStatusProcessing
			j.Attempts++
			return j, nil
		}
	}
	return nil, nil
}

func (f *fakeIngestionJobRepo) UpdateFieldsUnlessTerminal(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || types.IngestionJobTerminal(j.Status) {
		return false, nil
	}
	if v, ok := updates["status"]; ok {
		j.Status = v.(string)
	}
	if v, ok := updates["error_message"]; ok {
		j.ErrorMessage = v.(string)
	}
	if v, ok := updates["processed_sources"]; ok {
		j.ProcessedSources = v.(int)
		f.processedUpdates = append(f.processedUpdates, v.(int))
	}
	if v, ok := updates["extracted_claims"]; ok {
		j.ExtractedClaims = v.(int)
	}
	return true, nil
}

func (f *fakeIngestionJobRepo) Heartbeat(_ context.Context, _ *gorm.DB, _ uuid.UUID) error {
	return nil
}

type fakeClaimRepo struct {
	mu     sync.Mutex
	claims map[uuid.UUID]*types.Claim
}

func newFakeClaimRepo() *fakeClaimRepo {
	return &fakeClaimRepo{claims: map[uuid.UUID]*types.Claim{}}
}

func (f *fakeClaimRepo) Create(_ context.Context, _ *gorm.DB, claims []*types.Claim) ([]*types.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range claims {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		f.claims[c.ID] = c
	}
	return claims, nil
}

func (f *fakeClaimRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claims[id], nil
}

func (f *fakeClaimRepo) GetByTwinID(_ context.Context, _ *gorm.DB, twinID uuid.UUID, minConfidence float64) ([]*types.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.Claim{}
	for _, c := range f.claims {
		if c.TwinID == twinID && c.Confidence >= minConfidence {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeClaimRepo) GetByTwinAndStatus(_ context.Context, _ *gorm.DB, twinID uuid.UUID, status string) ([]*types.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.Claim{}
	for _, c := range f.claims {
		if c.TwinID == twinID && c.VerificationStatus == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out, nil
}

func (f *fakeClaimRepo) SetVerificationStatus(_ context.Context, _ *gorm.DB, id uuid.UUID, from string, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.claims[id]
	if !ok {
		return fmt.Errorf("claim %s not found", id)
	}
	if c.VerificationStatus != from {
		return fmt.Errorf("claim %s is %s, expected %s", id, c.VerificationStatus, from)
	}
	c.VerificationStatus = to
	now := time.Now()
	c.ReviewedAt = &now
	if to == types.ClaimPending {
		c.ReviewCount++
	}
	return nil
}

func (f *fakeClaimRepo) CountByTwin(_ context.Context, _ *gorm.DB, twinID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, c := range f.claims {
		if c.TwinID == twinID {
			n++
		}
	}
	return n, nil
}

type fakeBioVariantRepo struct {
	mu       sync.Mutex
	variants map[uuid.UUID][]*types.BioVariant
	replaces int
}

func newFakeBioVariantRepo() *fakeBioVariantRepo {
	return &fakeBioVariantRepo{variants: map[uuid.UUID][]*types.BioVariant{}}
}

func (f *fakeBioVariantRepo) GetByTwinID(_ context.Context, _ *gorm.DB, twinID uuid.UUID) ([]*types.BioVariant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.variants[twinID], nil
}

func (f *fakeBioVariantRepo) ReplaceForTwin(_ context.Context, _ *gorm.DB, twinID uuid.UUID, variants []*types.BioVariant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.variants[twinID] = variants
	f.replaces++
	return nil
}

type fakeFeedbackEventRepo struct {
	mu     sync.Mutex
	events []*types.FeedbackEvent
}

func newFakeFeedbackEventRepo() *fakeFeedbackEventRepo {
	return &fakeFeedbackEventRepo{}
}

func (f *fakeFeedbackEventRepo) Create(_ context.Context, _ *gorm.DB, events []*types.FeedbackEvent) ([]*types.FeedbackEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range events {
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = time.Now()
		}
		f.events = append(f.events, ev)
	}
	return events, nil
}

func (f *fakeFeedbackEventRepo) CountByTwinSince(_ context.Context, _ *gorm.DB, twinID uuid.UUID, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, ev := range f.events {
		if ev.TwinID == twinID && ev.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeFeedbackEventRepo) GetByTwinSince(_ context.Context, _ *gorm.DB, twinID uuid.UUID, since time.Time, limit int) ([]*types.FeedbackEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.FeedbackEvent{}
	for _, ev := range f.events {
		if ev.TwinID == twinID && ev.CreatedAt.After(since) {
			out = append(out, ev)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeFeedbackEventRepo) TwinsWithEventsSince(_ context.Context, _ *gorm.DB, since time.Time) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	out := []uuid.UUID{}
	for _, ev := range f.events {
		if ev.CreatedAt.After(since) && !seen[ev.TwinID] {
			seen[ev.TwinID] = true
			out = append(out, ev.TwinID)
		}
	}
	return out, nil
}

type fakeLearningJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*types.LearningJob
}

func newFakeLearningJobRepo() *fakeLearningJobRepo {
	return &fakeLearningJobRepo{jobs: map[uuid.UUID]*types.LearningJob{}}
}

func (f *fakeLearningJobRepo) Create(_ context.Context, _ *gorm.DB, jobs []*types.LearningJob) ([]*types.LearningJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range jobs {
		f.jobs[j.ID] = j
	}
	return jobs, nil
}

func (f *fakeLearningJobRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.LearningJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id], nil
}

func (f *fakeLearningJobRepo) GetActiveByTwin(_ context.Context, _ *gorm.DB, twinID uuid.UUID) (*types.LearningJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.TwinID == twinID && !types.LearningJobTerminal(j.Status) {
			return j, nil
		}
	}
	return nil, nil
}

func (f *fakeLearningJobRepo) GetLatestByTwin(_ context.Context, _ *gorm.DB, twinID uuid.UUID) (*types.LearningJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *types.LearningJob
	for _, j := range f.jobs {
		if j.TwinID != twinID {
			continue
		}
		if latest == nil || j.TriggeredAt.After(latest.TriggeredAt) {
			latest = j
		}
	}
	return latest, nil
}

func (f *fakeLearningJobRepo) ListByTwin(_ context.Context, _ *gorm.DB, twinID uuid.UUID, limit int) ([]*types.LearningJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.LearningJob{}
	for _, j := range f.jobs {
		if j.TwinID == twinID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLearningJobRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return fmt.Errorf("learning job %s not found", id)
	}
	if v, ok := updates["status"]; ok {
		j.Status = v.(string)
	}
	if v, ok := updates["reject_reason"]; ok {
		j.RejectReason = v.(string)
	}
	if v, ok := updates["pass_rate"]; ok {
		j.PassRate = v.(float64)
	}
	if v, ok := updates["adversarial_pass_rate"]; ok {
		j.AdversarialPassRate = v.(float64)
	}
	if v, ok := updates["channel_isolation_pass_rate"]; ok {
		j.ChannelIsolationPassRate = v.(float64)
	}
	if v, ok := updates["decided_at"]; ok {
		j.DecidedAt = v.(*time.Time)
	}
	return nil
}

type fakePersonaVersionRepo struct {
	mu       sync.Mutex
	versions map[uuid.UUID][]*types.PersonaVersion
}

func newFakePersonaVersionRepo() *fakePersonaVersionRepo {
	return &fakePersonaVersionRepo{versions: map[uuid.UUID][]*types.PersonaVersion{}}
}

func (f *fakePersonaVersionRepo) GetActiveByTwin(_ context.Context, _ *gorm.DB, twinID uuid.UUID) (*types.PersonaVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.versions[twinID] {
		if v.Active {
			return v, nil
		}
	}
	return nil, nil
}

func (f *fakePersonaVersionRepo) Publish(_ context.Context, _ *gorm.DB, version *types.PersonaVersion) (*types.PersonaVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}
	for _, v := range f.versions[version.TwinID] {
		v.Active = false
	}
	version.Active = true
	f.versions[version.TwinID] = append(f.versions[version.TwinID], version)
	return version, nil
}
