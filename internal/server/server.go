// Package server exposes the form engine over HTTP: option lists, template
// definitions, submission normalisation and CSV import checks.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	optionscomp "github.com/goliatone/go-formflow/components/options"
	"github.com/goliatone/go-formflow/internal/metrics"
	"github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/repository"
	"github.com/goliatone/go-formflow/pkg/templates"
	"github.com/goliatone/go-formflow/pkg/validation"
)

const maxUploadBytes = 10 << 20

// FormLister returns the forms offered to clients.
type FormLister func(ctx context.Context) ([]repository.FormSummary, error)

type Deps struct {
	Templates templates.Source
	Forms     FormLister
	Queries   *options.Registry
	Options   optionscomp.Fetcher
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
	Timeout   time.Duration
}

type Server struct {
	deps Deps
}

// New builds the router.
func New(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Instrument)
	}
	if deps.Timeout > 0 {
		r.Use(middleware.Timeout(deps.Timeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	// Registration only fails on a nil mux.
	_, _ = optionscomp.RegisterRoutes(r, "/",
		optionscomp.WithSource(deps.Queries, deps.Options),
		optionscomp.WithLogger(deps.Logger.Named("options")),
	)

	r.Route("/api/forms", func(api chi.Router) {
		api.Get("/", s.listForms)
		api.Get("/{id}", s.getForm)
		api.Post("/{id}/normalize", s.normalize)
	})
	r.Post("/api/imports/check", s.checkImport)
	return r
}

type errorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
	Form   []string            `json:"form,omitempty"`
}

func (s *Server) listForms(w http.ResponseWriter, r *http.Request) {
	if s.deps.Forms == nil {
		writeJSON(w, http.StatusOK, map[string]any{"data": []repository.FormSummary{}})
		return
	}
	forms, err := s.deps.Forms(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if forms == nil {
		forms = []repository.FormSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": forms})
}

func (s *Server) getForm(w http.ResponseWriter, r *http.Request) {
	def, ok := s.definition(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"form": def.Form, "cascade": def.Graph})
}

func (s *Server) definition(w http.ResponseWriter, r *http.Request) (templates.Definition, bool) {
	if s.deps.Templates == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown form"})
		return templates.Definition{}, false
	}
	def, err := s.deps.Templates.Definition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return templates.Definition{}, false
	}
	return def, true
}

// fail maps err onto a status code. Remote failures only ever expose the
// generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		fieldErr *validation.Error
		ruleErr  *validation.BusinessRuleError
	)
	switch {
	case errors.Is(err, templates.ErrUnknownForm), errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown form"})
	case errors.As(err, &fieldErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  validation.UserMessage(err),
			Fields: fieldErr.Fields,
			Form:   fieldErr.Form,
		})
	case errors.As(err, &ruleErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: validation.UserMessage(err)})
	default:
		s.deps.Logger.Warn("request failed",
			zap.String("path", r.URL.Path),
			zap.String("requestId", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: validation.GenericMessage})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(payload)
}
