package classifier

import (
	"JustNowBackend/internal/entity"
)

type Disposition string

const (
	// Confirmed intents proceed straight to generation.
	Confirmed Disposition = "confirmed"
	// Ambiguous intents need an explicit user confirmation before any
	// downstream call is issued.
	Ambiguous Disposition = "ambiguous"
	// Rejected intents are discarded; downstream is never called.
	Rejected Disposition = "rejected"
	// Invalid marks a category whose required slots are missing. Terminal,
	// regardless of how confident the recognizer was.
	Invalid Disposition = "invalid"
)

// Tier boundaries. Both are inclusive lower bounds of their tier.
const (
	ConfirmThreshold   = 0.85
	AmbiguousThreshold = 0.60
)

// requiredSlots lists the slot names a category cannot execute without.
var requiredSlots = map[entity.IntentCategory][]string{
	entity.CategoryService: {"destination"},
}

type Result struct {
	Disposition  Disposition
	MissingSlots []string
}

// Classify maps an intent to its disposition. Pure and deterministic; callers
// never retry a classification.
func Classify(intent entity.Intent) Result {
	disposition := tierOf(intent.ConfidenceScore)

	// Slot completeness runs after tiering and can downgrade any tier,
	// including Confirmed, to Invalid.
	missing := missingSlots(intent)
	if len(missing) > 0 {
		return Result{Disposition: Invalid, MissingSlots: missing}
	}

	return Result{Disposition: disposition}
}

func tierOf(score float64) Disposition {
	switch {
	case score >= ConfirmThreshold:
		return Confirmed
	case score >= AmbiguousThreshold:
		return Ambiguous
	default:
		return Rejected
	}
}

func missingSlots(intent entity.Intent) []string {
	required, ok := requiredSlots[intent.Category]
	if !ok {
		return nil
	}

	var missing []string
	for _, name := range required {
		value, present := intent.Slots[name]
		if !present || value == nil {
			missing = append(missing, name)
			continue
		}
		if s, isString := value.(string); isString && s == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
