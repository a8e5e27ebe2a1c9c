package uischema

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
)

type ViolationKind string

const (
	KindMalformed    ViolationKind = "malformed"
	KindMissingField ViolationKind = "missing_field"
	KindUnknownType  ViolationKind = "unknown_type"
	KindInvalidField ViolationKind = "invalid_field"
	KindDuplicateID  ViolationKind = "duplicate_id"
)

type FieldViolation struct {
	Path   string        `json:"path"`
	Kind   ViolationKind `json:"kind"`
	Detail string        `json:"detail,omitempty"`
}

// ValidationError carries every violation found before validation bailed out.
// The payload it describes is never rendered, not even partially.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "ui payload validation failed"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Path, v.Kind))
	}
	return "ui payload validation failed: " + strings.Join(parts, "; ")
}

// HasDuplicateID reports whether any violation is an ID collision, which gets
// its own reason in error reporting.
func (e *ValidationError) HasDuplicateID() bool {
	for _, v := range e.Violations {
		if v.Kind == KindDuplicateID {
			return true
		}
	}
	return false
}

type IValidator interface {
	Validate(raw []byte) (*UIPayload, error)
}

type schemaValidator struct {
	validate *validator.Validate
	json     jsoniter.API
}

func New() IValidator {
	return &schemaValidator{
		validate: validator.New(),
		json:     jsoniter.ConfigCompatibleWithStandardLibrary,
	}
}

type rawEnvelope struct {
	Components *[]jsoniter.RawMessage `json:"components"`
}

type typeTag struct {
	Type string `json:"type"`
}

// Validate parses and validates a payload against the closed widget set.
// Acceptance is atomic: either every component is structurally valid and the
// widget_id namespace is collision free, or the whole payload is rejected.
func (s *schemaValidator) Validate(raw []byte) (*UIPayload, error) {
	var envelope rawEnvelope
	if err := s.json.Unmarshal(raw, &envelope); err != nil {
		return nil, &ValidationError{Violations: []FieldViolation{
			{Path: "$", Kind: KindMalformed, Detail: err.Error()},
		}}
	}

	if envelope.Components == nil {
		return nil, &ValidationError{Violations: []FieldViolation{
			{Path: "components", Kind: KindMissingField, Detail: "components is required"},
		}}
	}

	payload := &UIPayload{Components: make([]Component, 0, len(*envelope.Components))}
	seenIDs := make(map[string]string)
	var violations []FieldViolation

	for i, rawComponent := range *envelope.Components {
		path := fmt.Sprintf("components[%d]", i)

		var tag typeTag
		if err := s.json.Unmarshal(rawComponent, &tag); err != nil {
			violations = append(violations, FieldViolation{Path: path, Kind: KindMalformed, Detail: err.Error()})
			continue
		}

		component, componentViolations := s.decodeVariant(path, tag.Type, rawComponent)
		if len(componentViolations) > 0 {
			violations = append(violations, componentViolations...)
			continue
		}

		violations = append(violations, collectIDs(path, component, seenIDs)...)
		payload.Components = append(payload.Components, component)
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	return payload, nil
}

func (s *schemaValidator) decodeVariant(path, tag string, raw jsoniter.RawMessage) (Component, []FieldViolation) {
	// Exact, case-sensitive match. Unknown tags reject the payload; there is
	// no widget-level fallback at this layer.
	switch tag {
	case TypeInfoCard:
		var c InfoCard
		if violations := s.decodeInto(path, raw, &c); violations != nil {
			return nil, violations
		}
		if c.Style == "" {
			c.Style = DefaultStyle
		}
		return c, nil
	case TypeActionList:
		var c ActionList
		if violations := s.decodeInto(path, raw, &c); violations != nil {
			return nil, violations
		}
		return c, nil
	case TypeMapView:
		var c MapView
		if violations := s.decodeInto(path, raw, &c); violations != nil {
			return nil, violations
		}
		// Default only when the field is absent; an explicit zoom of 0
		// is a real value.
		if c.Zoom == nil {
			zoom := float64(DefaultZoom)
			c.Zoom = &zoom
		}
		return c, nil
	case TypeWebView:
		var c WebView
		if violations := s.decodeInto(path, raw, &c); violations != nil {
			return nil, violations
		}
		return c, nil
	default:
		return nil, []FieldViolation{{
			Path:   path + ".type",
			Kind:   KindUnknownType,
			Detail: fmt.Sprintf("unknown component type %q", tag),
		}}
	}
}

func (s *schemaValidator) decodeInto(path string, raw jsoniter.RawMessage, dest interface{}) []FieldViolation {
	if err := s.json.Unmarshal(raw, dest); err != nil {
		return []FieldViolation{{Path: path, Kind: KindInvalidField, Detail: err.Error()}}
	}

	err := s.validate.Struct(dest)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldViolation{{Path: path, Kind: KindInvalidField, Detail: err.Error()}}
	}

	violations := make([]FieldViolation, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		kind := KindInvalidField
		if fieldErr.Tag() == "required" {
			kind = KindMissingField
		}
		violations = append(violations, FieldViolation{
			Path:   path + "." + fieldPath(fieldErr.Namespace()),
			Kind:   kind,
			Detail: fmt.Sprintf("failed %q constraint", fieldErr.Tag()),
		})
	}
	return violations
}

// collectIDs walks one component and records every widget_id, including the
// IDs of nested ActionList items, into the payload-wide namespace.
func collectIDs(path string, component Component, seen map[string]string) []FieldViolation {
	var violations []FieldViolation

	record := func(id, idPath string) {
		if firstPath, exists := seen[id]; exists {
			violations = append(violations, FieldViolation{
				Path:   idPath,
				Kind:   KindDuplicateID,
				Detail: fmt.Sprintf("id %q already used at %s", id, firstPath),
			})
			return
		}
		seen[id] = idPath
	}

	record(component.WidgetID(), path+".widget_id")

	if list, ok := component.(ActionList); ok {
		for i, item := range list.Items {
			record(item.ID, fmt.Sprintf("%s.items[%d].id", path, i))
		}
	}

	return violations
}

// fieldPath turns a validator namespace like "ActionList.Items[0].Action.Type"
// into the JSON field path "items[0].action.type".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, part := range parts {
		idx := ""
		if bracket := strings.IndexByte(part, '['); bracket >= 0 {
			idx = part[bracket:]
			part = part[:bracket]
		}
		parts[i] = toSnake(part) + idx
	}
	return strings.Join(parts, ".")
}

func toSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && runes[i-1] >= 'a' && runes[i-1] <= 'z' {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
