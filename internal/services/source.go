package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/repos"
	"github.com/twinforge/twinforge-backend/internal/types"
)

type SourceInput struct {
	Kind              string `json:"kind"`
	Label             string `json:"label"`
	ContentRef        string `json:"content_ref"`
	IdentityConfirmed bool   `json:"identity_confirmed"`
}

type SourceService interface {
	// Register validates and creates sources for a twin, optionally bound to an
	// ingestion job. Sources are only ever mutated by fetch/extraction stages
	// after this point.
	Register(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, jobID *uuid.UUID, inputs []SourceInput) ([]*types.Source, error)
	ConfirmIdentity(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) error
	ListByTwin(ctx context.Context, tx *gorm.DB, twinID uuid.UUID) ([]*types.Source, error)
}

type sourceService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.SourceRepo
}

func NewSourceService(db *gorm.DB, baseLog *logger.Logger, repo repos.SourceRepo) SourceService {
	return &sourceService{
		db:   db,
		log:  baseLog.With("service", "SourceService"),
		repo: repo,
	}
}

var validSourceKinds = map[string]bool{
	types.SourceKindFile:  true,
	types.SourceKindURL:   true,
	types.SourceKindPaste: true,
}

var validSourceLabels = map[string]bool{
	types.SourceLabelIdentity:  true,
	types.SourceLabelKnowledge: true,
	types.SourceLabelPolicies:  true,
}

func (s *sourceService) Register(ctx context.Context, tx *gorm.DB, twinID uuid.UUID, jobID *uuid.UUID, inputs []SourceInput) ([]*types.Source, error) {
	if twinID == uuid.Nil {
		return nil, fmt.Errorf("missing twin id")
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}
	rows := make([]*types.Source, 0, len(inputs))
	for i, in := range inputs {
		kind := strings.TrimSpace(strings.ToLower(in.Kind))
		label := strings.TrimSpace(strings.ToLower(in.Label))
		if !validSourceKinds[kind] {
			return nil, fmt.Errorf("invalid source kind %q at index %d", in.Kind, i)
		}
		if !validSourceLabels[label] {
			return nil, fmt.Errorf("invalid source label %q at index %d", in.Label, i)
		}
		if strings.TrimSpace(in.ContentRef) == "" {
			return nil, fmt.Errorf("missing content_ref at index %d", i)
		}
		rows = append(rows, &types.Source{
			ID:                uuid.New(),
			TwinID:            twinID,
			IngestionJobID:    jobID,
			Kind:              kind,
			Label:             label,
			ContentRef:        in.ContentRef,
			IdentityConfirmed: label == types.SourceLabelIdentity && in.IdentityConfirmed,
			FetchStatus:       types.SourceFetchPending,
		})
	}
	return s.repo.Create(ctx, tx, rows)
}

func (s *sourceService) ConfirmIdentity(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) error {
	if sourceID == uuid.Nil {
		return fmt.Errorf("missing source id")
	}
	return s.repo.ConfirmIdentity(ctx, tx, sourceID)
}

func (s *sourceService) ListByTwin(ctx context.Context, tx *gorm.DB, twinID uuid.UUID) ([]*types.Source, error) {
	return s.repo.GetByTwinID(ctx, tx, twinID)
}
