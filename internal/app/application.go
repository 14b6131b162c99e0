// Package app wires the identity services onto a shared store.
package app

import (
	"fmt"
	"time"

	"github.com/aims-io/aims/internal/app/auth"
	"github.com/aims-io/aims/internal/app/services/agents"
	"github.com/aims-io/aims/internal/app/services/auditlog"
	"github.com/aims-io/aims/internal/app/services/capabilities"
	"github.com/aims-io/aims/internal/app/services/keys"
	"github.com/aims-io/aims/internal/app/services/tokens"
	"github.com/aims-io/aims/internal/app/storage"
	"github.com/aims-io/aims/pkg/logger"
)

// Options captures the token and key parameters the services need.
type Options struct {
	JWTSecret             string
	JWTAlgorithm          string
	JWTExpirationMinutes  int
	APIKeyPrefix          string
	KeyRotationGraceHours int
}

// Application bundles the services behind the HTTP API.
type Application struct {
	Store storage.Store

	Agents       *agents.Service
	Keys         *keys.Service
	Capabilities *capabilities.Service
	Tokens       *tokens.Service
	Audit        *auditlog.Service

	TokenManager *auth.Manager
}

// New builds an application on top of the provided store. A nil store
// defaults to the in-memory implementation.
func New(store storage.Store, opts Options, log *logger.Logger) (*Application, error) {
	if store == nil {
		store = storage.NewMemory()
	}
	if log == nil {
		log = logger.NewDefault("app")
	}
	if opts.JWTExpirationMinutes <= 0 {
		opts.JWTExpirationMinutes = 30
	}
	if opts.APIKeyPrefix == "" {
		opts.APIKeyPrefix = "aims_"
	}

	manager, err := auth.NewManager(opts.JWTSecret, opts.JWTAlgorithm,
		time.Duration(opts.JWTExpirationMinutes)*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}

	return &Application{
		Store:        store,
		Agents:       agents.NewService(store, log),
		Keys:         keys.NewService(store, store, opts.APIKeyPrefix, opts.KeyRotationGraceHours, log),
		Capabilities: capabilities.NewService(store, store, log),
		Tokens:       tokens.NewService(store, manager, opts.KeyRotationGraceHours, log),
		Audit:        auditlog.NewService(store, log),
		TokenManager: manager,
	}, nil
}
