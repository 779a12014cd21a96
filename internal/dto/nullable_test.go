package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateEventRequestNullable(t *testing.T) {
	var absent UpdateEventRequest
	require.NoError(t, json.Unmarshal([]byte(`{"points": 3}`), &absent))
	assert.False(t, absent.Student.Set)
	assert.False(t, absent.Period.Set)
	require.NotNil(t, absent.Points)
	assert.Equal(t, 3, *absent.Points)

	var cleared UpdateEventRequest
	require.NoError(t, json.Unmarshal([]byte(`{"student": null, "period": null}`), &cleared))
	assert.True(t, cleared.Student.Set)
	assert.Nil(t, cleared.Student.Value)
	assert.True(t, cleared.Period.Set)
	assert.Nil(t, cleared.Period.Value)

	var set UpdateEventRequest
	require.NoError(t, json.Unmarshal([]byte(`{"period": 4, "description": "late"}`), &set))
	require.NotNil(t, set.Period.Value)
	assert.Equal(t, 4, *set.Period.Value)
	require.NotNil(t, set.Description.Value)
	assert.Equal(t, "late", *set.Description.Value)
}

func TestNullableRejectsWrongType(t *testing.T) {
	var req UpdateEventRequest
	assert.Error(t, json.Unmarshal([]byte(`{"period": "first"}`), &req))
}

func TestNullableMarshal(t *testing.T) {
	out, err := json.Marshal(struct {
		A Nullable[int] `json:"a"`
		B Nullable[int] `json:"b"`
	}{A: Some(2), B: Null[int]()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2,"b":null}`, string(out))
}
