package templates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formflow/pkg/model"
)

const (
	// orderExtension positions a property; properties without it follow in
	// name order.
	orderExtension = "x-order"
	// widgetExtension set to "textarea" turns a string into a textarea.
	widgetExtension = "x-widget"

	generalSectionID = "general"
	textareaMinimum  = 256
)

// FromOpenAPI derives one definition per operation whose JSON request body
// is an object. Scalar properties form a leading "general" section, nested
// objects become sections and arrays of objects become duplicatable
// sections capped by maxItems.
func FromOpenAPI(ctx context.Context, data []byte) ([]Definition, error) {
	if len(data) == 0 {
		return nil, errors.New("templates: openapi document is empty")
	}
	loader := &openapi3.Loader{Context: ctx}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("templates: load openapi: %w", err)
	}
	if doc.Paths == nil || doc.Paths.Len() == 0 {
		return nil, errors.New("templates: openapi document does not contain any paths")
	}

	var defs []Definition
	paths := doc.Paths.InMatchingOrder()
	sort.Strings(paths)
	for _, path := range paths {
		item := doc.Paths.Value(path)
		if item == nil {
			continue
		}
		for _, method := range []string{"POST", "PUT", "PATCH"} {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			schema := requestSchema(op.RequestBody)
			if schema == nil || !hasType(schema, openapi3.TypeObject) {
				continue
			}
			id := op.OperationID
			if id == "" {
				id = strings.ToLower(method) + ":" + path
			}
			form, err := formFromSchema(id, op.Summary, schema)
			if err != nil {
				return nil, err
			}
			defs = append(defs, Definition{Form: form})
		}
	}
	if len(defs) == 0 {
		return nil, errors.New("templates: no operation with an object request body")
	}
	return defs, nil
}

func requestSchema(body *openapi3.RequestBodyRef) *openapi3.Schema {
	if body == nil || body.Value == nil {
		return nil
	}
	content := body.Value.Content
	if mt, ok := content["application/json"]; ok && mt.Schema != nil {
		return mt.Schema.Value
	}
	for _, mt := range content {
		if mt != nil && mt.Schema != nil {
			return mt.Schema.Value
		}
	}
	return nil
}

func formFromSchema(id, summary string, schema *openapi3.Schema) (model.FormTemplate, error) {
	name := summary
	if name == "" {
		name = model.DefaultLabeler(id)
	}
	form := model.FormTemplate{ID: id, Name: name}

	general := model.SectionTemplate{ID: generalSectionID, Name: "General"}
	var nested []model.SectionTemplate

	for i, prop := range orderedProperties(schema) {
		value := prop.schema
		switch {
		case hasType(value, openapi3.TypeObject):
			nested = append(nested, sectionFromObject(prop.name, value, false, 0))
		case hasType(value, openapi3.TypeArray) && value.Items != nil && value.Items.Value != nil && hasType(value.Items.Value, openapi3.TypeObject):
			maxItems := 0
			if value.MaxItems != nil {
				maxItems = int(*value.MaxItems)
			}
			nested = append(nested, sectionFromObject(prop.name, value.Items.Value, true, maxItems))
		default:
			general.Fields = append(general.Fields, fieldFromSchema(prop.name, value, required(schema, prop.name), i))
		}
	}

	if len(general.Fields) > 0 {
		form.Sections = append(form.Sections, general)
	}
	form.Sections = append(form.Sections, nested...)
	for i := range form.Sections {
		form.Sections[i].Order = i
	}
	if err := form.Validate(); err != nil {
		return model.FormTemplate{}, fmt.Errorf("templates: operation %q: %w", id, err)
	}
	return form, nil
}

func sectionFromObject(name string, schema *openapi3.Schema, duplicatable bool, maxInstances int) model.SectionTemplate {
	label := schema.Title
	if label == "" {
		label = model.DefaultLabeler(name)
	}
	section := model.SectionTemplate{
		ID:           name,
		Name:         label,
		Duplicatable: duplicatable,
		MaxInstances: maxInstances,
	}
	for i, prop := range orderedProperties(schema) {
		// Deeper nesting is flattened into text inputs.
		section.Fields = append(section.Fields, fieldFromSchema(prop.name, prop.schema, required(schema, prop.name), i))
	}
	return section
}

func fieldFromSchema(name string, schema *openapi3.Schema, isRequired bool, order int) model.FieldTemplate {
	label := schema.Title
	if label == "" {
		label = model.DefaultLabeler(name)
	}
	field := model.FieldTemplate{
		ID:       name,
		Name:     name,
		Label:    label,
		Type:     fieldType(schema),
		Required: isRequired,
		ReadOnly: schema.ReadOnly,
		Order:    order,
		Pattern:  schema.Pattern,
	}
	if len(schema.Enum) > 0 {
		field.Type = model.FieldTypeSelect
		for i, value := range schema.Enum {
			text := fmt.Sprint(value)
			field.Options = append(field.Options, model.Option{
				ID:      text,
				Value:   text,
				Order:   i,
				FieldID: name,
			})
		}
	}
	return field
}

func fieldType(schema *openapi3.Schema) model.FieldType {
	switch {
	case hasType(schema, openapi3.TypeBoolean):
		return model.FieldTypeBoolean
	case hasType(schema, openapi3.TypeInteger), hasType(schema, openapi3.TypeNumber):
		return model.FieldTypeNumber
	case schema.Format == "date", schema.Format == "date-time":
		return model.FieldTypeDate
	case extensionString(schema, widgetExtension) == "textarea":
		return model.FieldTypeTextArea
	case schema.MaxLength != nil && *schema.MaxLength >= textareaMinimum:
		return model.FieldTypeTextArea
	default:
		return model.FieldTypeText
	}
}

type property struct {
	name   string
	schema *openapi3.Schema
	order  int
	hasPos bool
}

func orderedProperties(schema *openapi3.Schema) []property {
	props := make([]property, 0, len(schema.Properties))
	for name, ref := range schema.Properties {
		if ref == nil || ref.Value == nil {
			continue
		}
		prop := property{name: name, schema: ref.Value}
		if pos, ok := ref.Value.Extensions[orderExtension].(float64); ok {
			prop.order = int(pos)
			prop.hasPos = true
		}
		props = append(props, prop)
	}
	sort.SliceStable(props, func(i, j int) bool {
		a, b := props[i], props[j]
		if a.hasPos != b.hasPos {
			return a.hasPos
		}
		if a.hasPos && a.order != b.order {
			return a.order < b.order
		}
		return a.name < b.name
	})
	return props
}

func hasType(schema *openapi3.Schema, want string) bool {
	if schema == nil || schema.Type == nil {
		return false
	}
	return schema.Type.Includes(want)
}

func required(schema *openapi3.Schema, name string) bool {
	for _, candidate := range schema.Required {
		if candidate == name {
			return true
		}
	}
	return false
}

func extensionString(schema *openapi3.Schema, key string) string {
	value, _ := schema.Extensions[key].(string)
	return value
}
