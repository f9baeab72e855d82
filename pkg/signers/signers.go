// Package signers recomputes the approval signer list of a request.
package signers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/validation"
)

// ActionApprove is the action given to signers added from item categories.
const ActionApprove = "approve"

// Source loads the signers configured for a project option.
type Source interface {
	ProjectSigners(ctx context.Context, projectOptionID string) (model.SignerList, error)
}

// SourceFunc adapts a function into a Source.
type SourceFunc func(ctx context.Context, projectOptionID string) (model.SignerList, error)

// ProjectSigners calls fn.
func (fn SourceFunc) ProjectSigners(ctx context.Context, projectOptionID string) (model.SignerList, error) {
	return fn(ctx, projectOptionID)
}

// Resolver swaps between the template default list and project lists.
type Resolver struct {
	defaults model.SignerList
	source   Source
	logger   *zap.Logger
}

// NewResolver creates a resolver. A nil source always yields the defaults.
func NewResolver(defaults model.SignerList, source Source, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{defaults: defaults.Clone(), source: source, logger: logger}
}

// Default returns a copy of the template default list.
func (r *Resolver) Default() model.SignerList {
	return r.defaults.Clone()
}

// ForProject returns the list for the selected project. An empty id restores
// the default list. A project without configured signers keeps the default
// list as well.
func (r *Resolver) ForProject(ctx context.Context, projectOptionID string) (model.SignerList, error) {
	if projectOptionID == "" || r.source == nil {
		return r.Default(), nil
	}
	list, err := r.source.ProjectSigners(ctx, projectOptionID)
	if err != nil {
		r.logger.Warn("project signers unavailable",
			zap.String("project", projectOptionID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("signers: project %s: %w", projectOptionID, validation.ErrRemote)
	}
	if len(list) == 0 {
		return r.Default(), nil
	}
	return list.Clone(), nil
}

// AppendCategorySigners adds the signer named by metaKey on the selected
// option of field in every section, skipping team members already present.
func AppendCategorySigners(list model.SignerList, sections []model.SectionInstance, field, metaKey string) model.SignerList {
	out := list.Clone()
	for _, section := range sections {
		idx := section.FieldIndex(field)
		if idx < 0 {
			continue
		}
		option, ok := section.Fields[idx].SelectedOption()
		if !ok {
			continue
		}
		member := option.Meta[metaKey]
		if member == "" || out.Contains(member) {
			continue
		}
		out = append(out, model.Signer{TeamMemberID: member, Action: ActionApprove})
	}
	return out
}
