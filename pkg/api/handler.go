// Package api implements the API layer: HTTP handlers for the six endpoints
// in spec §6, wired onto the chi router mounted by internal/httpserver.
// Grounded on the teacher's pkg/incident.Handler shape — a struct holding its
// collaborators, a Routes() method returning a chi.Router, one file per
// resource group.
package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/verseforge/verseforge/internal/telemetry"
	"github.com/verseforge/verseforge/pkg/cache"
	"github.com/verseforge/verseforge/pkg/metastore"
	"github.com/verseforge/verseforge/pkg/moderation"
	"github.com/verseforge/verseforge/pkg/modelclient"
	"github.com/verseforge/verseforge/pkg/ratelimit"
	"github.com/verseforge/verseforge/pkg/storage"
	"github.com/verseforge/verseforge/pkg/validator"
	"github.com/verseforge/verseforge/pkg/verse"
)

// Handler holds every collaborator the API layer drives (spec §2 data flow).
type Handler struct {
	logger      *slog.Logger
	validator   *validator.Validator
	rateLimiter *ratelimit.Coordinator
	verses      *verse.Resolver
	model       *modelclient.ModelClient
	moderation  *moderation.Moderation
	storage     *storage.Storage
	cache       *cache.Cache
	meta        *metastore.Store
	usage       *telemetry.UsageCounters

	environment    string
	adminTokenHash string
	publicBase     string
}

// Config bundles the constructor arguments that aren't themselves
// collaborators.
type Config struct {
	Environment    string
	AdminTokenHash string
	PublicBase     string
}

// New creates an API Handler.
func New(
	logger *slog.Logger,
	v *validator.Validator,
	rl *ratelimit.Coordinator,
	resolver *verse.Resolver,
	model *modelclient.ModelClient,
	mod *moderation.Moderation,
	store *storage.Storage,
	c *cache.Cache,
	meta *metastore.Store,
	usage *telemetry.UsageCounters,
	cfg Config,
) *Handler {
	return &Handler{
		logger:         logger,
		validator:      v,
		rateLimiter:    rl,
		verses:         resolver,
		model:          model,
		moderation:     mod,
		storage:        store,
		cache:          c,
		meta:           meta,
		usage:          usage,
		environment:    cfg.Environment,
		adminTokenHash: cfg.AdminTokenHash,
		publicBase:     cfg.PublicBase,
	}
}

// Routes mounts every endpoint in spec §6 onto a fresh chi.Router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/generate", h.handleGenerate)
	r.Get("/images/{id}", h.handleGetImage)
	r.Get("/images/{id}/data", h.handleGetImageData)
	r.Get("/images/{id}/share", h.handleShareImage)
	r.Get("/daily-verse", h.handleDailyVerse)
	r.Post("/admin/moderate", h.handleModerate)

	return r
}

// MountDevRoutes registers the development-only surface (spec §6:
// "ENVIRONMENT (development unlocks POST /internal/set-daily-verse)") on the
// top-level router, outside the /api prefix. It registers nothing unless the
// handler's environment is "development", so it is safe to call always.
func (h *Handler) MountDevRoutes(r chi.Router) {
	if h.environment != "development" {
		return
	}
	r.Post("/internal/set-daily-verse", h.handleSetDailyVerse)
}

// recordTelemetry emits the per-operation log line spec §4.11 item 6
// requires: {operation, duration, outcome, requestId, metadata}.
func (h *Handler) recordTelemetry(operation, requestID, outcome string, start time.Time, attrs ...any) {
	args := []any{"operation", operation, "duration_ms", time.Since(start).Milliseconds(), "outcome", outcome, "request_id", requestID}
	args = append(args, attrs...)
	h.logger.Info("request completed", args...)
}
