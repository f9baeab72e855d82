// Package tui fills a form session interactively in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/goliatone/go-formflow/pkg/engine"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/validation"
)

const skipChoice = "(leave empty)"

// Theme captures optional message prefixes.
type Theme struct {
	InfoPrefix  string
	ErrorPrefix string
}

// Option configures the Filler.
type Option func(*Filler)

// WithPromptDriver overrides the prompt driver.
func WithPromptDriver(driver PromptDriver) Option {
	return func(f *Filler) {
		if driver != nil {
			f.driver = driver
		}
	}
}

// WithTheme applies message prefixes.
func WithTheme(theme Theme) Option {
	return func(f *Filler) {
		f.theme = theme
	}
}

// WithMaxAttempts bounds how often a rejected field is asked again.
func WithMaxAttempts(n int) Option {
	return func(f *Filler) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// Result describes how a fill ended.
type Result struct {
	Submitted bool
	RequestID string
}

// Filler walks every section of a session and prompts for each field.
type Filler struct {
	driver      PromptDriver
	theme       Theme
	maxAttempts int
}

// New creates a Filler using the survey driver unless one is supplied.
func New(opts ...Option) *Filler {
	f := &Filler{maxAttempts: 3, theme: Theme{ErrorPrefix: "! "}}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	if f.driver == nil {
		f.driver = NewSurveyDriver(nil)
	}
	return f
}

// Fill prompts for every editable field, offers to add instances of
// duplicatable sections, validates and finally asks whether to submit.
func (f *Filler) Fill(ctx context.Context, session *engine.Session) (Result, error) {
	form := session.Form()
	counts := make(map[string]int)

	for i := 0; i < len(session.Sections()); i++ {
		section := session.Sections()[i]
		tpl, _ := form.Section(section.SectionID)
		counts[section.SectionID]++

		heading := sectionTitle(tpl)
		if tpl.Duplicatable {
			heading += " #" + strconv.Itoa(counts[section.SectionID])
		}
		if err := f.info(ctx, heading); err != nil {
			return Result{}, err
		}

		// Fields are re-read after every change because cascades insert and
		// remove fields.
		for j := 0; ; j++ {
			current := session.Sections()[i]
			if j >= len(current.Fields) {
				break
			}
			if err := f.fillField(ctx, session, i, current.Fields[j]); err != nil {
				return Result{}, err
			}
		}

		if tpl.Duplicatable && session.CanDuplicate(tpl.ID) && f.isLastInstance(session, i) {
			more, err := f.driver.Confirm(ctx, ConfirmConfig{Message: fmt.Sprintf("Add another %s?", sectionTitle(tpl))})
			if err != nil {
				return Result{}, err
			}
			if more {
				if _, err := session.Duplicate(tpl.ID); err != nil {
					if infoErr := f.fail(ctx, err); infoErr != nil {
						return Result{}, infoErr
					}
				}
			}
		}
	}

	if err := session.Validate(); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			for _, messages := range verr.Fields {
				for _, message := range messages {
					_ = f.info(ctx, f.theme.ErrorPrefix+message)
				}
			}
		}
		return Result{}, err
	}

	submit, err := f.driver.Confirm(ctx, ConfirmConfig{Message: "Submit request?", Default: true})
	if err != nil || !submit {
		return Result{}, err
	}
	id, err := session.Submit(ctx)
	if err != nil {
		_ = f.fail(ctx, err)
		return Result{}, err
	}
	if err := f.info(ctx, "Submitted request "+id); err != nil {
		return Result{}, err
	}
	return Result{Submitted: true, RequestID: id}, nil
}

func (f *Filler) isLastInstance(session *engine.Session, index int) bool {
	all := session.Sections()
	return index+1 >= len(all) || all[index+1].SectionID != all[index].SectionID
}

func (f *Filler) fillField(ctx context.Context, session *engine.Session, index int, field model.FieldInstance) error {
	label := field.Label
	if label == "" {
		label = model.DefaultLabeler(field.Name)
	}
	if field.ReadOnly {
		if field.Value == "" {
			return nil
		}
		return f.info(ctx, fmt.Sprintf("  %s: %s", label, field.Value))
	}

	var lastErr error
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		value, skip, err := f.ask(ctx, label, field)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}
		if _, err := session.OnFieldChange(ctx, index, field.Name, value); err != nil {
			lastErr = err
			if infoErr := f.fail(ctx, err); infoErr != nil {
				return infoErr
			}
			continue
		}
		return nil
	}
	return lastErr
}

// ask prompts for one value. skip reports a select without options.
func (f *Filler) ask(ctx context.Context, label string, field model.FieldInstance) (string, bool, error) {
	message := label
	if field.Required {
		message += " *"
	}
	switch field.Type {
	case model.FieldTypeSelect:
		if len(field.Options) == 0 {
			return "", true, nil
		}
		choices := make([]string, 0, len(field.Options)+1)
		descriptions := make([]string, 0, len(field.Options)+1)
		if !field.Required {
			choices = append(choices, skipChoice)
			descriptions = append(descriptions, "")
		}
		for _, option := range field.Options {
			choices = append(choices, option.Value)
			descriptions = append(descriptions, describeOption(option))
		}
		idx, err := f.driver.Select(ctx, SelectConfig{
			Message:      message,
			Options:      choices,
			Descriptions: descriptions,
			DefaultIndex: indexOf(choices, field.Value),
		})
		if err != nil {
			return "", false, err
		}
		if idx < 0 || idx >= len(choices) || choices[idx] == skipChoice {
			return "", false, nil
		}
		return choices[idx], false, nil
	case model.FieldTypeBoolean:
		current, _ := strconv.ParseBool(field.Value)
		ok, err := f.driver.Confirm(ctx, ConfirmConfig{Message: message, Default: current})
		if err != nil {
			return "", false, err
		}
		return strconv.FormatBool(ok), false, nil
	case model.FieldTypeTextArea:
		value, err := f.driver.TextArea(ctx, TextAreaConfig{Message: message, Default: field.Value})
		return strings.TrimSpace(value), false, err
	default:
		value, err := f.driver.Input(ctx, InputConfig{
			Message:   message,
			Default:   field.Value,
			Validator: inputValidator(field, label),
		})
		return strings.TrimSpace(value), false, err
	}
}

func inputValidator(field model.FieldInstance, label string) func(string) error {
	var pattern *regexp.Regexp
	if field.Pattern != "" {
		pattern, _ = regexp.Compile(`^(?:` + field.Pattern + `)$`)
	}
	return func(raw string) error {
		value := strings.TrimSpace(raw)
		if value == "" {
			if field.Required {
				return fmt.Errorf("%s is required", label)
			}
			return nil
		}
		if field.Type == model.FieldTypeNumber {
			if _, err := decimal.NewFromString(strings.ReplaceAll(value, ",", "")); err != nil {
				return fmt.Errorf("%s must be a number", label)
			}
		}
		if pattern != nil && !pattern.MatchString(value) {
			return fmt.Errorf("%s has an invalid format", label)
		}
		return nil
	}
}

func (f *Filler) info(ctx context.Context, msg string) error {
	return f.driver.Info(ctx, f.theme.InfoPrefix+msg)
}

func (f *Filler) fail(ctx context.Context, err error) error {
	return f.driver.Info(ctx, f.theme.ErrorPrefix+validation.UserMessage(err))
}

func sectionTitle(tpl model.SectionTemplate) string {
	if tpl.Name != "" {
		return tpl.Name
	}
	return model.DefaultLabeler(tpl.ID)
}
