package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemaJSON(t *testing.T) {
	falsy := false
	s := Schema{
		Type: Object,
		Properties: map[string]*Property{
			"path": {Type: String, Description: "File path"},
			"depth": {
				Type:        Integer,
				Description: "Recursion depth",
			},
			"todos": {
				Type: Array,
				Items: &Property{
					Type: Object,
					Properties: map[string]*Property{
						"status": {Type: String, Enum: []string{"pending", "in_progress", "completed"}},
					},
					Required: []string{"status"},
				},
			},
		},
		Required:             []string{"path"},
		AdditionalProperties: &falsy,
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded Schema
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, Object, decoded.Type)
	require.Equal(t, []string{"path"}, decoded.Required)
	require.Equal(t, String, decoded.Properties["path"].Type)
	require.Equal(t, []string{"pending", "in_progress", "completed"},
		decoded.Properties["todos"].Items.Properties["status"].Enum)
	require.NotNil(t, decoded.AdditionalProperties)
	require.False(t, *decoded.AdditionalProperties)
}

func TestEmptyPropertiesOmitted(t *testing.T) {
	data, err := json.Marshal(Schema{Type: Object})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"object"}`, string(data))
}
