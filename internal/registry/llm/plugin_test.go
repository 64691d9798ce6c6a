package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func testSchema() map[string]ParameterSchema {
	return map[string]ParameterSchema{
		"temperature": {Kind: KindFloat, Min: floatPtr(0.0), Max: floatPtr(2.0), Default: 0.7},
		"top_p":       {Kind: KindFloat, Min: floatPtr(0.0), Max: floatPtr(1.0), Default: 1.0},
		"model":       {Kind: KindString, Default: "default-model"},
	}
}

func TestValidateParameters_FillsDefaults(t *testing.T) {
	out, err := ValidateParameters(testSchema(), map[string]any{})
	require.NoError(t, err)
	require.Equal(t, 0.7, out["temperature"])
	require.Equal(t, 1.0, out["top_p"])
}

func TestValidateParameters_ClampsOutOfRange(t *testing.T) {
	out, err := ValidateParameters(testSchema(), map[string]any{"temperature": -1.0, "top_p": 3.0})
	require.NoError(t, err)
	require.Equal(t, 0.0, out["temperature"])
	require.Equal(t, 1.0, out["top_p"])
}

func TestValidateParameters_RejectsUnknownKey(t *testing.T) {
	_, err := ValidateParameters(testSchema(), map[string]any{"bogus": 1})
	require.Error(t, err)
}
