package http

import (
	"github.com/deckhand-ai/deckhand/internal/service"
)

const defaultMaxRequestBodySize = 1 << 20 // 1 MB

// Limits bounds request processing.
type Limits struct {
	MaxRequestBodySize int64 // bytes; zero selects the default
}

func (l Limits) bodyLimit() int64 {
	if l.MaxRequestBodySize <= 0 {
		return defaultMaxRequestBodySize
	}
	return l.MaxRequestBodySize
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Workspaces *service.WorkspaceService
	Sessions   *service.SessionService
	Limits     Limits
}
