package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formflow/pkg/cascade"
	"github.com/goliatone/go-formflow/pkg/engine"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/normalize"
	"github.com/goliatone/go-formflow/pkg/repository"
	"github.com/goliatone/go-formflow/pkg/templates"
)

type stubDriver struct {
	inputs       []string
	selectIdx    []int
	confirm      []bool
	textAreas    []string
	infoMessages []string
	inputPos     int
	selectPos    int
	confirmPos   int
	textPos      int
	selectErr    error
	selects      []SelectConfig
}

func (s *stubDriver) Input(_ context.Context, _ InputConfig) (string, error) {
	if s.inputPos >= len(s.inputs) {
		return "", errors.New("no input scripted")
	}
	val := s.inputs[s.inputPos]
	s.inputPos++
	return val, nil
}

func (s *stubDriver) Confirm(_ context.Context, _ ConfirmConfig) (bool, error) {
	if s.confirmPos >= len(s.confirm) {
		return false, errors.New("no confirm scripted")
	}
	val := s.confirm[s.confirmPos]
	s.confirmPos++
	return val, nil
}

func (s *stubDriver) Select(_ context.Context, cfg SelectConfig) (int, error) {
	s.selects = append(s.selects, cfg)
	if s.selectErr != nil {
		return -1, s.selectErr
	}
	if s.selectPos >= len(s.selectIdx) {
		return -1, errors.New("no select scripted")
	}
	val := s.selectIdx[s.selectPos]
	s.selectPos++
	return val, nil
}

func (s *stubDriver) TextArea(_ context.Context, _ TextAreaConfig) (string, error) {
	if s.textPos >= len(s.textAreas) {
		return "", errors.New("no textarea scripted")
	}
	val := s.textAreas[s.textPos]
	s.textPos++
	return val, nil
}

func (s *stubDriver) Info(_ context.Context, msg string) error {
	s.infoMessages = append(s.infoMessages, msg)
	return nil
}

type captureSubmitter struct {
	submissions []normalize.Submission
}

func (c *captureSubmitter) Submit(_ context.Context, submission normalize.Submission, _ repository.Owner) (string, error) {
	c.submissions = append(c.submissions, submission)
	return "req-1", nil
}

func paymentDefinition() templates.Definition {
	computations := []cascade.Computation{
		{Target: "vat", Func: "vat", Args: []string{"invoice_amount"}},
		{Target: "cost", Func: "net_of_vat", Args: []string{"invoice_amount", "vat"}},
	}
	return templates.Definition{
		Form: model.FormTemplate{
			ID:   "payment",
			Name: "Payment request",
			Sections: []model.SectionTemplate{
				{ID: "header", Name: "Header", Fields: []model.FieldTemplate{
					{Name: "project", Type: model.FieldTypeSelect, Required: true, Options: []model.Option{
						{ID: "p1", Value: "Alpha"},
						{ID: "p2", Value: "Beta", Order: 1, Meta: map[string]string{"region": "north", "code": "B-01"}},
					}},
				}},
				{ID: "items", Name: "Items", Duplicatable: true, MaxInstances: 2, Fields: []model.FieldTemplate{
					{Name: "item_name", Type: model.FieldTypeText, Required: true},
					{Name: "invoice_amount", Type: model.FieldTypeNumber},
					{Name: "has_vat", Type: model.FieldTypeBoolean},
					{Name: "cost", Type: model.FieldTypeNumber, ReadOnly: true},
				}},
			},
		},
		Graph: cascade.Graph{Rules: []cascade.Rule{
			{
				Section: "items",
				Driver:  "has_vat",
				Insertions: []cascade.Insertion{{
					When:  "has_vat == true",
					Field: model.FieldTemplate{Name: "vat", Type: model.FieldTypeNumber, ReadOnly: true},
					After: "has_vat",
				}},
				Computations: computations,
			},
			{Section: "items", Driver: "invoice_amount", Computations: computations},
		}},
	}
}

func openPayment(t *testing.T, submitter engine.Submitter) *engine.Session {
	t.Helper()
	bundle := templates.NewBundle()
	if err := bundle.Add(paymentDefinition()); err != nil {
		t.Fatalf("add definition: %v", err)
	}
	eng, err := engine.New(engine.WithTemplates(bundle), engine.WithSubmitter(submitter))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	session, err := eng.Open(context.Background(), engine.AppContext{TeamID: "t1"}, "payment")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return session
}

func TestFillWalksSectionsAndSubmits(t *testing.T) {
	t.Parallel()

	submitter := &captureSubmitter{}
	session := openPayment(t, submitter)
	driver := &stubDriver{
		selectIdx: []int{1},
		inputs:    []string{"Laptop", "1000", "Mouse", "50"},
		confirm:   []bool{true, true, false, true},
	}

	result, err := New(WithPromptDriver(driver)).Fill(context.Background(), session)
	if err != nil {
		t.Fatalf("Fill returned error: %v (info %v)", err, driver.infoMessages)
	}
	if diff := cmp.Diff(Result{Submitted: true, RequestID: "req-1"}, result); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}

	wantInfo := []string{
		"Header",
		"Items #1",
		"  Vat: 120.00",
		"  Cost: 880.00",
		"Items #2",
		"  Cost: 50.00",
		"Submitted request req-1",
	}
	if diff := cmp.Diff(wantInfo, driver.infoMessages); diff != "" {
		t.Fatalf("info mismatch (-want +got):\n%s", diff)
	}

	if len(driver.selects) != 1 {
		t.Fatalf("expected one select prompt, got %d", len(driver.selects))
	}
	project := driver.selects[0]
	if diff := cmp.Diff([]string{"Alpha", "Beta"}, project.Options); diff != "" {
		t.Fatalf("project choices mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"", "code: B-01, region: north"}, project.Descriptions); diff != "" {
		t.Fatalf("project descriptions mismatch (-want +got):\n%s", diff)
	}

	if len(submitter.submissions) != 1 {
		t.Fatalf("expected one submission, got %d", len(submitter.submissions))
	}
	sections := submitter.submissions[0].Sections
	if len(sections) != 3 || sections[0].Fields[0].Value != "Beta" || sections[2].Fields[0].Value != "Mouse" {
		t.Fatalf("unexpected submitted sections %+v", sections)
	}
}

func TestFillDeclinedSubmit(t *testing.T) {
	t.Parallel()

	submitter := &captureSubmitter{}
	session := openPayment(t, submitter)
	driver := &stubDriver{
		selectIdx: []int{0},
		inputs:    []string{"Laptop", "10"},
		confirm:   []bool{false, false, false},
	}
	result, err := New(WithPromptDriver(driver)).Fill(context.Background(), session)
	if err != nil {
		t.Fatalf("Fill returned error: %v", err)
	}
	if result.Submitted || len(submitter.submissions) != 0 {
		t.Fatalf("nothing should be submitted, got %+v", result)
	}
}

func TestFillAbort(t *testing.T) {
	t.Parallel()

	session := openPayment(t, &captureSubmitter{})
	driver := &stubDriver{selectErr: ErrAborted}
	_, err := New(WithPromptDriver(driver)).Fill(context.Background(), session)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}

func TestInputValidator(t *testing.T) {
	t.Parallel()

	validate := inputValidator(model.FieldInstance{Name: "qty", Type: model.FieldTypeNumber, Required: true, Pattern: `\d+`}, "Qty")
	cases := map[string]string{
		"":    "Qty is required",
		"abc": "Qty must be a number",
		"1.5": "Qty has an invalid format",
		"12":  "",
	}
	for input, want := range cases {
		err := validate(input)
		got := ""
		if err != nil {
			got = err.Error()
		}
		if !strings.EqualFold(got, want) {
			t.Fatalf("validate(%q) = %q, want %q", input, got, want)
		}
	}
}
