package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/twinforge/twinforge-backend/internal/types"
)

func newClaimFixture(t *testing.T) (ClaimService, *fakeClaimRepo, *types.Claim) {
	t.Helper()
	repo := newFakeClaimRepo()
	claim := &types.Claim{
		ID:                 uuid.New(),
		TwinID:             uuid.New(),
		SourceID:           uuid.New(),
		Text:               "I have shipped four production databases.",
		Confidence:         0.8,
		VerificationStatus: types.ClaimPending,
	}
	repo.claims[claim.ID] = claim
	return NewClaimService(nil, newTestLogger(t), repo), repo, claim
}

func TestReviewApproveRejectFromPending(t *testing.T) {
	svc, _, claim := newClaimFixture(t)
	got, err := svc.Review(context.Background(), nil, claim.ID, ReviewActionApprove)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.VerificationStatus != types.ClaimApproved {
		t.Fatalf("status: want=%s got=%s", types.ClaimApproved, got.VerificationStatus)
	}
	// A terminal claim must not move without an explicit reopen.
	if _, err := svc.Review(context.Background(), nil, claim.ID, ReviewActionReject); err == nil {
		t.Fatalf("approved claim rejected without reopen")
	}
}

func TestReviewReopenBumpsReviewCount(t *testing.T) {
	svc, repo, claim := newClaimFixture(t)
	if _, err := svc.Review(context.Background(), nil, claim.ID, ReviewActionReject); err != nil {
		t.Fatalf("reject: %v", err)
	}
	got, err := svc.Review(context.Background(), nil, claim.ID, ReviewActionReopen)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got.VerificationStatus != types.ClaimPending {
		t.Fatalf("status: want=%s got=%s", types.ClaimPending, got.VerificationStatus)
	}
	if repo.claims[claim.ID].ReviewCount != 1 {
		t.Fatalf("review_count: want=1 got=%d", repo.claims[claim.ID].ReviewCount)
	}
	// Reopening a pending claim is meaningless.
	if _, err := svc.Review(context.Background(), nil, claim.ID, ReviewActionReopen); err == nil {
		t.Fatalf("pending claim reopened")
	}
}

func TestReviewUnknownAction(t *testing.T) {
	svc, _, claim := newClaimFixture(t)
	if _, err := svc.Review(context.Background(), nil, claim.ID, "promote"); err == nil {
		t.Fatalf("unknown action accepted")
	}
}
