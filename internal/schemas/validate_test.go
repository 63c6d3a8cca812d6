package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterviewDataSchema_IsValidJSON(t *testing.T) {
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(InterviewDataSchema()), &v))
	assert.Equal(t, "InterviewData", v["title"])
}

func TestValidateJSONString_Valid(t *testing.T) {
	doc := `{
		"experiences": [{"journey": "prep", "rounds": [{"number": 1, "text": "dsa"}]}],
		"rounds": [{"number": 1, "entries": ["dsa"]}],
		"tips": ["practice daily"],
		"topics": [{"topic": "arrays", "mentions": 2}]
	}`
	assert.NoError(t, ValidateJSONString(InterviewDataSchema(), doc))
}

func TestValidateJSONString_Invalid(t *testing.T) {
	doc := `{"experiences": [], "rounds": [{"number": 0, "entries": []}], "tips": [], "topics": []}`

	err := ValidateJSONString(InterviewDataSchema(), doc)
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.NotEmpty(t, vErr.Errors)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestValidateJSONString_MissingRequired(t *testing.T) {
	err := ValidateJSONString(InterviewDataSchema(), `{"tips": []}`)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestValidateJSONString_BadSchema(t *testing.T) {
	err := ValidateJSONString(`{"type": 12}`, `{}`)
	var loadErr *SchemaLoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestValidateInterviewData(t *testing.T) {
	type tree struct {
		Experiences []any `json:"experiences"`
		Rounds      []any `json:"rounds"`
		Tips        []any `json:"tips"`
		Topics      []any `json:"topics"`
	}
	assert.NoError(t, ValidateInterviewData(tree{}))
	assert.Error(t, ValidateInterviewData(map[string]int{"experiences": 3}))
}
