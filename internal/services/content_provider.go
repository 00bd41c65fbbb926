package services

import (
	"context"
	"fmt"

	"github.com/twinforge/twinforge-backend/internal/logger"
	"github.com/twinforge/twinforge-backend/internal/types"
)

// SourceContentProvider resolves a source's raw text. File and URL transport
// live outside this service; deployments inject a transport-backed provider.
// Errors from Fetch are treated as retryable by the orchestrator.
type SourceContentProvider interface {
	Fetch(ctx context.Context, source *types.Source) (string, error)
}

// pasteContentProvider is the built-in provider: paste sources carry their
// content inline in ContentRef, everything else needs an injected transport.
type pasteContentProvider struct {
	log *logger.Logger
}

func NewPasteContentProvider(baseLog *logger.Logger) SourceContentProvider {
	return &pasteContentProvider{log: baseLog.With("service", "PasteContentProvider")}
}

func (p *pasteContentProvider) Fetch(_ context.Context, source *types.Source) (string, error) {
	if source == nil {
		return "", fmt.Errorf("missing source")
	}
	if source.Kind == types.SourceKindPaste {
		return source.ContentRef, nil
	}
	return "", fmt.Errorf("no transport configured for source kind %q", source.Kind)
}
