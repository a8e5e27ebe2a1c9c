package uischema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTaxiPayload() string {
	return `{
		"components": [
			{
				"type": "MapView",
				"widget_id": "map_station_01",
				"center": {"lat": 39.9042, "lng": 116.4074},
				"zoom": 12.0,
				"markers": [{"lat": 39.9042, "lng": 116.4074, "title": "Train Station"}]
			},
			{
				"type": "ActionList",
				"widget_id": "ride_options_01",
				"title": "Available Rides",
				"items": [
					{"id": "ride_economy", "title": "Economy - Est. $12", "action": {"type": "deep_link", "url": "api:order_ride?type=economy"}},
					{"id": "ride_premium", "title": "Premium - Est. $20", "action": {"type": "deep_link", "url": "api:order_ride?type=premium"}}
				]
			}
		]
	}`
}

func TestValidateAcceptsWellFormedPayload(t *testing.T) {
	payload, err := New().Validate([]byte(validTaxiPayload()))
	require.NoError(t, err)
	require.Len(t, payload.Components, 2)

	assert.Equal(t, TypeMapView, payload.Components[0].ComponentType())
	assert.Equal(t, TypeActionList, payload.Components[1].ComponentType())

	list, ok := payload.Components[1].(ActionList)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(list.Items), 2)
}

func TestValidateRejectsMissingComponents(t *testing.T) {
	_, err := New().Validate([]byte(`{"foo":"bar"}`))
	require.Error(t, err)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Len(t, validationErr.Violations, 1)
	assert.Equal(t, "components", validationErr.Violations[0].Path)
	assert.Equal(t, KindMissingField, validationErr.Violations[0].Kind)
}

func TestValidateRejectsUnknownTypeTag(t *testing.T) {
	raw := `{"components":[{"type":"infocard","widget_id":"w1","title":"t","content_md":"c"}]}`

	_, err := New().Validate([]byte(raw))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, KindUnknownType, validationErr.Violations[0].Kind)
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	raw := `{"components":[{"type":"InfoCard","widget_id":"w1","title":"Hello"}]}`

	_, err := New().Validate([]byte(raw))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Len(t, validationErr.Violations, 1)
	assert.Equal(t, "components[0].content_md", validationErr.Violations[0].Path)
	assert.Equal(t, KindMissingField, validationErr.Violations[0].Kind)
}

func TestValidateRejectsMistypedField(t *testing.T) {
	raw := `{"components":[{"type":"InfoCard","widget_id":"w1","title":42,"content_md":"c"}]}`

	_, err := New().Validate([]byte(raw))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, KindInvalidField, validationErr.Violations[0].Kind)
}

func TestValidateRejectsInvalidStyle(t *testing.T) {
	raw := `{"components":[{"type":"InfoCard","widget_id":"w1","title":"t","content_md":"c","style":"fancy"}]}`

	_, err := New().Validate([]byte(raw))
	require.Error(t, err)
}

func TestValidateAppliesDefaults(t *testing.T) {
	raw := `{"components":[
		{"type":"InfoCard","widget_id":"w1","title":"t","content_md":"c"},
		{"type":"MapView","widget_id":"w2","center":{"lat":1.0,"lng":2.0}}
	]}`

	payload, err := New().Validate([]byte(raw))
	require.NoError(t, err)

	card := payload.Components[0].(InfoCard)
	assert.Equal(t, DefaultStyle, card.Style)

	mapView := payload.Components[1].(MapView)
	require.NotNil(t, mapView.Zoom)
	assert.Equal(t, float64(DefaultZoom), *mapView.Zoom)
}

func TestValidateKeepsExplicitZeroZoom(t *testing.T) {
	raw := `{"components":[
		{"type":"MapView","widget_id":"w1","center":{"lat":1.0,"lng":2.0},"zoom":0}
	]}`

	payload, err := New().Validate([]byte(raw))
	require.NoError(t, err)

	mapView := payload.Components[0].(MapView)
	require.NotNil(t, mapView.Zoom)
	assert.Equal(t, 0.0, *mapView.Zoom)
}

func TestValidateRejectsDuplicateWidgetID(t *testing.T) {
	raw := `{"components":[
		{"type":"InfoCard","widget_id":"dup","title":"t","content_md":"c"},
		{"type":"WebView","widget_id":"dup","url":"https://example.com"}
	]}`

	_, err := New().Validate([]byte(raw))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.True(t, validationErr.HasDuplicateID())
}

func TestValidateDuplicateIDAcrossNestedItems(t *testing.T) {
	// An ActionList item ID colliding with a sibling widget_id is still a
	// collision: the namespace spans the whole payload tree.
	raw := `{"components":[
		{"type":"InfoCard","widget_id":"shared_id","title":"t","content_md":"c"},
		{"type":"ActionList","widget_id":"list_1","title":"Options","items":[
			{"id":"shared_id","title":"Item","action":{"type":"toast","url":"hi"}}
		]}
	]}`

	_, err := New().Validate([]byte(raw))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.True(t, validationErr.HasDuplicateID())
}

func TestValidateNoPartialAcceptance(t *testing.T) {
	// First component is fine, second is broken: nothing survives.
	raw := `{"components":[
		{"type":"InfoCard","widget_id":"w1","title":"t","content_md":"c"},
		{"type":"MapView","widget_id":"w2"}
	]}`

	payload, err := New().Validate([]byte(raw))
	assert.Nil(t, payload)
	require.Error(t, err)
}

func TestValidateRejectsMalformedJSON(t *testing.T) {
	_, err := New().Validate([]byte(`{"components": [`))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, KindMalformed, validationErr.Violations[0].Kind)
}

func TestValidateMarkerRequiresCoordinates(t *testing.T) {
	raw := `{"components":[{"type":"MapView","widget_id":"w1","center":{"lat":1.0,"lng":2.0},"markers":[{"title":"no coords"}]}]}`

	_, err := New().Validate([]byte(raw))
	require.Error(t, err)
}
