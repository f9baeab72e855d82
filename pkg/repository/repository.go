// Package repository reads and writes the tables behind the form engine:
// form template definitions, project signer lists and submitted requests.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/goliatone/go-formflow/pkg/backend"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/normalize"
	"github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/validation"
)

// ErrNotFound is returned when a form template does not exist.
var ErrNotFound = errors.New("repository: not found")

// Tables names the tables the repository touches.
type Tables struct {
	Forms          string `json:"forms" yaml:"forms"`
	ProjectSigners string `json:"projectSigners" yaml:"projectSigners"`
	Requests       string `json:"requests" yaml:"requests"`
}

// DefaultTables returns the conventional table names.
func DefaultTables() Tables {
	return Tables{
		Forms:          "form_templates",
		ProjectSigners: "project_signers",
		Requests:       "requests",
	}
}

func (t Tables) withDefaults() Tables {
	defaults := DefaultTables()
	if t.Forms == "" {
		t.Forms = defaults.Forms
	}
	if t.ProjectSigners == "" {
		t.ProjectSigners = defaults.ProjectSigners
	}
	if t.Requests == "" {
		t.Requests = defaults.Requests
	}
	return t
}

// Owner identifies who submits a request.
type Owner struct {
	TeamID string
	UserID string
}

// FormSummary is a listing entry for stored templates.
type FormSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Option configures a Repository.
type Option func(*Repository)

// WithTables overrides table names. Empty names keep their defaults.
func WithTables(tables Tables) Option {
	return func(r *Repository) {
		r.tables = tables.withDefaults()
	}
}

// WithLogger sets the logger used for remote failures.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Repository maps domain reads and writes onto a backend.Client.
type Repository struct {
	client backend.Client
	tables Tables
	logger *zap.Logger
}

// New creates a repository over client.
func New(client backend.Client, opts ...Option) *Repository {
	r := &Repository{
		client: client,
		tables: DefaultTables(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Forms lists stored templates ordered by name.
func (r *Repository) Forms(ctx context.Context) ([]FormSummary, error) {
	res, err := r.client.Rows(ctx, backend.Request{
		Table:   r.tables.Forms,
		Columns: []string{"id", "name"},
		Order:   "name",
	})
	if err != nil {
		return nil, r.remote("list forms", err)
	}
	out := make([]FormSummary, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, FormSummary{ID: text(row["id"]), Name: text(row["name"])})
	}
	return out, nil
}

// FormDocument returns the raw definition document of one template, suitable
// for templates.DocumentSource.
func (r *Repository) FormDocument(ctx context.Context, id string) ([]byte, error) {
	res, err := r.client.Rows(ctx, backend.Request{
		Table:   r.tables.Forms,
		Columns: []string{"id", "definition"},
		Filters: []options.Filter{{Column: "id", Value: id}},
		Limit:   1,
	})
	if err != nil {
		return nil, r.remote("load form "+id, err)
	}
	if len(res.Rows) == 0 {
		return nil, fmt.Errorf("%w: form %q", ErrNotFound, id)
	}

	raw, err := rawJSON(res.Rows[0]["definition"])
	if err != nil {
		return nil, fmt.Errorf("repository: form %q: %w", id, err)
	}
	return raw, nil
}

// FormTemplate loads and validates one template definition.
func (r *Repository) FormTemplate(ctx context.Context, id string) (model.FormTemplate, error) {
	raw, err := r.FormDocument(ctx, id)
	if err != nil {
		return model.FormTemplate{}, err
	}
	var form model.FormTemplate
	if err := json.Unmarshal(raw, &form); err != nil {
		return model.FormTemplate{}, fmt.Errorf("repository: decode form %q: %w", id, err)
	}
	if form.ID == "" {
		form.ID = id
	}
	if err := form.Validate(); err != nil {
		return model.FormTemplate{}, fmt.Errorf("repository: form %q: %w", id, err)
	}
	return form, nil
}

// ProjectSigners returns the signers configured for a project option in
// their configured order.
func (r *Repository) ProjectSigners(ctx context.Context, projectOptionID string) (model.SignerList, error) {
	res, err := r.client.Rows(ctx, backend.Request{
		Table:   r.tables.ProjectSigners,
		Columns: []string{"team_member_id", "action", "is_primary", "position"},
		Filters: []options.Filter{{Column: "project_id", Value: projectOptionID}},
		Order:   "position",
	})
	if err != nil {
		return nil, r.remote("project signers "+projectOptionID, err)
	}
	list := make(model.SignerList, 0, len(res.Rows))
	for _, row := range res.Rows {
		list = append(list, model.Signer{
			TeamMemberID: text(row["team_member_id"]),
			Action:       text(row["action"]),
			Primary:      flag(row["is_primary"]),
		})
	}
	return list, nil
}

// Submit stores a normalised request and returns its id. Store errors that
// carry per-field messages are returned as *backend.Error so callers can map
// them onto the form; every other failure becomes validation.ErrRemote.
func (r *Repository) Submit(ctx context.Context, submission normalize.Submission, owner Owner) (string, error) {
	sections, err := json.Marshal(submission.Sections)
	if err != nil {
		return "", fmt.Errorf("repository: encode sections: %w", err)
	}
	signers, err := json.Marshal(submission.Signers)
	if err != nil {
		return "", fmt.Errorf("repository: encode signers: %w", err)
	}

	row := backend.Row{
		"form_id":  submission.FormID,
		"sections": json.RawMessage(sections),
		"signers":  json.RawMessage(signers),
	}
	if submission.ProjectOptionID != "" {
		row["project_option_id"] = submission.ProjectOptionID
	}
	if owner.TeamID != "" {
		row["team_id"] = owner.TeamID
	}
	if owner.UserID != "" {
		row["user_id"] = owner.UserID
	}

	stored, err := r.client.Insert(ctx, r.tables.Requests, row)
	if err != nil {
		var backendErr *backend.Error
		if errors.As(err, &backendErr) && len(backendErr.Fields) > 0 {
			return "", fmt.Errorf("repository: submit: %w", err)
		}
		return "", r.remote("submit "+submission.FormID, err)
	}
	r.logger.Info("request submitted",
		zap.String("form", submission.FormID),
		zap.String("team", owner.TeamID),
	)
	return text(stored["id"]), nil
}

func (r *Repository) remote(action string, err error) error {
	r.logger.Error("backend call failed", zap.String("action", action), zap.Error(err))
	return fmt.Errorf("repository: %s: %w", action, validation.ErrRemote)
}

func rawJSON(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, errors.New("empty definition")
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}

func text(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func flag(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}
