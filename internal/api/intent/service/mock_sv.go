package intentService

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"JustNowBackend/internal/api/intent"
	"JustNowBackend/internal/entity"
	"JustNowBackend/pkg/retrypolicy"
	"JustNowBackend/pkg/uischema"
)

// Mock scenario catalog for the X-Mock-Scenario override. Canned responses
// go through the same validation gate as model output, so end-to-end tests
// exercise the real pipeline without a live provider.
const (
	ScenarioTaxi = "taxi"
	ScenarioInfo = "info"
)

func (s *intentService) mockScenario(scenario, textInput string) (string, error) {
	switch scenario {
	case ScenarioTaxi:
		return `{
			"intent_id": "9b1e9e58-1c2f-4a53-9a75-6f7d1f3f0c11",
			"category": "SERVICE",
			"ui_schema_version": "1.0",
			"slots": {"destination": "train station", "service_type": "taxi"},
			"ui_payload": {
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
							{"id": "ride_economy", "title": "Economy - Est. $12", "subtitle": "4 min away", "action": {"type": "deep_link", "url": "api:order_ride?type=economy&dest=train_station"}},
							{"id": "ride_premium", "title": "Premium - Est. $20", "subtitle": "2 min away", "action": {"type": "deep_link", "url": "api:order_ride?type=premium&dest=train_station"}}
						]
					}
				]
			}
		}`, nil
	case ScenarioInfo:
		return `{
			"intent_id": "4f6a6c1e-7f3a-4a0e-8b3c-2d9d2b6f0a22",
			"category": "CHAT",
			"ui_schema_version": "1.0",
			"slots": {},
			"ui_payload": {
				"components": [
					{"type": "InfoCard", "widget_id": "info_card_01", "title": "Here is what I found", "content_md": "Sample informational content.", "style": "standard"}
				]
			}
		}`, nil
	default:
		return "", retrypolicy.NewError(retrypolicy.KindMalformedRequest, intent.ErrUnknownScenario)
	}
}

// FallbackBody builds the last-resort InfoCard shown when generation failed
// outright. It is constructed from typed components and marshaled, never
// assembled from strings, so arbitrary user text cannot break the JSON and
// the body always passes the same validation gate as everything else.
func FallbackBody(userText string) string {
	truncated := []rune(userText)
	suffix := ""
	if len(truncated) > 100 {
		truncated = truncated[:100]
		suffix = "..."
	}

	card := uischema.InfoCard{
		Type:     uischema.TypeInfoCard,
		WidgetId: "error_card_01",
		Title:    "Unable to Process Request",
		ContentMd: fmt.Sprintf(
			"Sorry, I could not process your request.\n\n**Your request:** %s%s\n\nPlease try again or rephrase.",
			string(truncated), suffix),
		Style: "warning",
	}

	body, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(
		uischema.UIPayload{Components: []uischema.Component{card}})
	if err != nil {
		return `{"components":[]}`
	}
	return body
}

func categoryGuess(req intent.ProcessIntentRequest) entity.IntentCategory {
	if _, ok := req.Slots["destination"]; ok {
		return entity.CategoryService
	}
	return entity.CategoryChat
}
