package httpapi

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"schoold/internal/auth"
	"schoold/internal/bus"
	"schoold/internal/ledger"
	"schoold/internal/models"
	"schoold/internal/token"
)

// Config controls runtime behaviour for the HTTP handlers.
type Config struct {
	AllowedOrigins []string
	CookieDomain   string
	Production     bool
}

// AcademicsStore persists the domain records that own attachments and drive
// the submission notification stream.
type AcademicsStore interface {
	TeacherIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
	StudentIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
	CreateAssignment(ctx context.Context, a *models.Assignment) error
	CreateSubmission(ctx context.Context, s *models.Submission) error
	CreateModule(ctx context.Context, m *models.Module) error
	ModuleByID(ctx context.Context, id uuid.UUID) (*models.Module, error)
	DeleteModule(ctx context.Context, id uuid.UUID) error
}

// API wires the auth orchestrator, token codec, attachment ledger, domain
// records, and the live notification hub behind the HTTP surface.
type API struct {
	auth      *auth.Service
	codec     *token.Codec
	ledger    *ledger.Ledger
	academics AcademicsStore
	events    *bus.Bus
	stream    *streamHub
	config    Config
	log       zerolog.Logger
}

// New initialises the API layer. ledger, academics, and events may be nil
// when blob storage, the database record layer, or the bus are not
// configured; the affected routes then respond 503.
func New(svc *auth.Service, codec *token.Codec, lgr *ledger.Ledger, academics AcademicsStore, events *bus.Bus, cfg Config, log zerolog.Logger) (*API, error) {
	if svc == nil {
		return nil, errors.New("auth service is required")
	}
	if codec == nil {
		return nil, errors.New("token codec is required")
	}

	return &API{
		auth:      svc,
		codec:     codec,
		ledger:    lgr,
		academics: academics,
		events:    events,
		stream:    newStreamHub(events, log),
		config:    cfg,
		log:       log,
	}, nil
}

// RunStream starts pumping bus events into connected notification clients.
func (a *API) RunStream(ctx context.Context) error {
	return a.stream.Run(ctx)
}
