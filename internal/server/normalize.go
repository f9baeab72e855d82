package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/goliatone/go-formflow/pkg/cascade"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/normalize"
	"github.com/goliatone/go-formflow/pkg/templates"
	"github.com/goliatone/go-formflow/pkg/validation"
)

type normalizeRequest struct {
	Sections []model.SectionInstance `json:"sections"`
	Signers  model.SignerList        `json:"signers"`
}

// normalize validates posted sections against the template and returns the
// folded submission payload without storing it.
func (s *Server) normalize(w http.ResponseWriter, r *http.Request) {
	def, ok := s.definition(w, r)
	if !ok {
		return
	}

	var req normalizeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	sections, err := overlay(def, req.Sections)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := validation.New().Validate(sections); err != nil {
		s.fail(w, r, err)
		return
	}

	signers := req.Signers
	if len(signers) == 0 {
		signers = model.SignerList(def.Form.Signers).Clone()
	}
	submission, err := normalize.New(def.Form, normalize.WithLogger(s.deps.Logger)).Normalize(sections, signers)
	if errors.Is(err, normalize.ErrUnresolvedOption) {
		verr := &validation.Error{}
		verr.Add("", "The selected project is not available.")
		s.fail(w, r, verr)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, submission)
}

// overlay rebuilds posted sections from their templates so required flags
// and patterns come from the server. Posted values, option lists and
// duplication ids are kept. Fields the template does not declare are only
// accepted when a cascade insertion of that section names them, and are
// rebuilt from the insertion; anything else is rejected.
func overlay(def templates.Definition, posted []model.SectionInstance) ([]model.SectionInstance, error) {
	verr := &validation.Error{}
	out := make([]model.SectionInstance, 0, len(posted))
	for _, section := range posted {
		tpl, ok := def.Form.Section(section.SectionID)
		if !ok {
			verr.Add("", "Unknown section "+section.SectionID+".")
			continue
		}
		dupID := section.DuplicationID()
		rebuilt := model.NewSectionInstance(tpl, dupID)
		inserted := insertions(def.Graph, tpl.ID)
		for _, field := range section.Fields {
			target, ok := rebuilt.Field(field.Name)
			if !ok {
				insertion, allowed := inserted[field.Name]
				if !allowed {
					verr.Add(model.FieldPath(rebuilt.Key(), field.Name), "Unknown field "+field.Name+".")
					continue
				}
				at := len(rebuilt.Fields)
				if idx := rebuilt.FieldIndex(insertion.After); insertion.After != "" && idx >= 0 {
					at = idx + 1
				}
				rebuilt.InsertField(at, model.NewFieldInstance(insertion.Field, dupID))
				target, _ = rebuilt.Field(field.Name)
			}
			target.Value = field.Value
			if len(field.Options) > 0 {
				target.Options = model.CloneOptions(field.Options)
			}
		}
		out = append(out, rebuilt)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// insertions indexes the fields cascade rules may insert into a section
// template.
func insertions(graph cascade.Graph, sectionID string) map[string]cascade.Insertion {
	out := make(map[string]cascade.Insertion)
	for _, rule := range graph.Rules {
		if rule.Section != sectionID {
			continue
		}
		for _, insertion := range rule.Insertions {
			out[insertion.Field.Name] = insertion
		}
	}
	return out
}
