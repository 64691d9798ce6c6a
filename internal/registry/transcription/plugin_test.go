package transcription

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func testSchema() map[string]ParameterSchema {
	return map[string]ParameterSchema{
		"temperature": {Kind: KindFloat, Min: floatPtr(0.0), Max: floatPtr(1.0), Default: 0.0},
		"beam_size":   {Kind: KindInt, Min: floatPtr(1), Max: floatPtr(10), Default: 5},
		"language":    {Kind: KindString, Default: "auto", AllowedValues: []any{"auto", "en", "sl"}},
		"enable_diarization": {Kind: KindBool, Default: false},
	}
}

func TestValidateParameters_FillsDefaults(t *testing.T) {
	out, err := ValidateParameters(testSchema(), map[string]any{})
	require.NoError(t, err)
	require.Equal(t, 0.0, out["temperature"])
	require.Equal(t, 5, out["beam_size"])
	require.Equal(t, "auto", out["language"])
	require.Equal(t, false, out["enable_diarization"])
}

func TestValidateParameters_ClampsOutOfRange(t *testing.T) {
	out, err := ValidateParameters(testSchema(), map[string]any{
		"temperature": 5.0,
		"beam_size":   100,
	})
	require.NoError(t, err)
	require.Equal(t, 1.0, out["temperature"])
	require.Equal(t, 10, out["beam_size"])
}

func TestValidateParameters_RejectsUnknownKey(t *testing.T) {
	_, err := ValidateParameters(testSchema(), map[string]any{"bogus": 1})
	require.Error(t, err)
}

func TestValidateParameters_RejectsDisallowedEnumValue(t *testing.T) {
	_, err := ValidateParameters(testSchema(), map[string]any{"language": "fr"})
	require.Error(t, err)
}

func TestValidateParameters_RejectsWrongType(t *testing.T) {
	_, err := ValidateParameters(testSchema(), map[string]any{"enable_diarization": "yes"})
	require.Error(t, err)
}
