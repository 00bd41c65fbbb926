package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/twinforge/twinforge-backend/internal/config"
	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/repos"
	"github.com/twinforge/twinforge-backend/internal/requestdata"
)

// OwnerClaims is the JWT payload for owner sessions. Training sessions carry
// an explicit flag; nothing downstream infers it from anything else.
type OwnerClaims struct {
	UserID   string `json:"user_id"`
	TwinID   string `json:"twin_id,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
	Training bool   `json:"training,omitempty"`
	jwt.RegisteredClaims
}

// AuthService resolves the three entry surfaces into request data: owner JWT,
// widget embed key, and read-only share token. Every failure maps to an
// unauthenticated context, never a partially trusted one.
type AuthService interface {
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	SetContextFromEmbedKey(ctx context.Context, twinID uuid.UUID, embedKey string) (context.Context, error)
	SetContextFromShareToken(ctx context.Context, shareToken string) (context.Context, error)
	IssueOwnerToken(userID uuid.UUID, twinID uuid.UUID, tenantID string, training bool, ttl time.Duration) (string, error)
}

type authService struct {
	log   *logger.Logger
	cfg   config.AuthConfig
	twins repos.TwinRepo
}

func NewAuthService(baseLog *logger.Logger, cfg config.AuthConfig, twins repos.TwinRepo) AuthService {
	return &authService{
		log:   baseLog.With("service", "AuthService"),
		cfg:   cfg,
		twins: twins,
	}
}

func (s *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	claims := &OwnerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecretKey), nil
	})
	if err != nil || !token.Valid {
		return ctx, fmt.Errorf("invalid token")
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil || userID == uuid.Nil {
		return ctx, fmt.Errorf("invalid token subject")
	}
	rd := &requestdata.RequestData{
		TokenString:     tokenString,
		UserID:          userID,
		TenantID:        claims.TenantID,
		Origin:          requestdata.OriginOwnerSession,
		TrainingSession: claims.Training,
	}
	if claims.TwinID != "" {
		twinID, err := uuid.Parse(claims.TwinID)
		if err != nil {
			return ctx, fmt.Errorf("invalid twin in token")
		}
		twin, err := s.twins.GetByID(ctx, nil, twinID)
		if err != nil {
			return ctx, err
		}
		if twin == nil {
			return ctx, fmt.Errorf("unknown twin")
		}
		rd.TwinID = twinID
		rd.OwnerOfTwin = twin.OwnerUserID == userID
		if rd.TenantID == "" {
			rd.TenantID = twin.TenantID
		}
	}
	return requestdata.WithRequestData(ctx, rd), nil
}

func (s *authService) SetContextFromEmbedKey(ctx context.Context, twinID uuid.UUID, embedKey string) (context.Context, error) {
	if twinID == uuid.Nil || embedKey == "" {
		return ctx, fmt.Errorf("missing embed credentials")
	}
	twin, err := s.twins.GetByID(ctx, nil, twinID)
	if err != nil {
		return ctx, err
	}
	if twin == nil || twin.EmbedKeyHash == "" {
		return ctx, fmt.Errorf("unknown twin")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(twin.EmbedKeyHash), []byte(embedKey)); err != nil {
		return ctx, fmt.Errorf("invalid embed key")
	}
	rd := &requestdata.RequestData{
		TwinID:   twin.ID,
		TenantID: twin.TenantID,
		Origin:   requestdata.OriginWidgetEmbed,
	}
	return requestdata.WithRequestData(ctx, rd), nil
}

func (s *authService) SetContextFromShareToken(ctx context.Context, shareToken string) (context.Context, error) {
	twin, err := s.twins.GetByShareToken(ctx, nil, shareToken)
	if err != nil {
		return ctx, err
	}
	if twin == nil {
		return ctx, fmt.Errorf("invalid share token")
	}
	rd := &requestdata.RequestData{
		TwinID:   twin.ID,
		TenantID: twin.TenantID,
		Origin:   requestdata.OriginShareLink,
	}
	return requestdata.WithRequestData(ctx, rd), nil
}

func (s *authService) IssueOwnerToken(userID uuid.UUID, twinID uuid.UUID, tenantID string, training bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &OwnerClaims{
		UserID:   userID.String(),
		TenantID: tenantID,
		Training: training,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if twinID != uuid.Nil {
		claims.TwinID = twinID.String()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecretKey))
}

// HashEmbedKey is used at twin provisioning time.
func HashEmbedKey(embedKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(embedKey), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
