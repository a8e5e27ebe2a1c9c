package openai

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemperatureForDeterministicSurvivesMarshaling(t *testing.T) {
	body, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(openai.ChatCompletionRequest{
		Model:       "deepseek-chat",
		Temperature: temperatureFor(true),
	})
	require.NoError(t, err)

	// A literal zero would be dropped by omitempty and the provider would
	// sample at its own default.
	assert.Contains(t, string(body), `"temperature"`)
	assert.Less(t, temperatureFor(true), float32(1e-30))
	assert.Greater(t, temperatureFor(true), float32(0))
}

func TestTemperatureForDefaultSampling(t *testing.T) {
	assert.Equal(t, float32(0.7), temperatureFor(false))
}
