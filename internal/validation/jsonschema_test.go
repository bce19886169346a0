package validation

import (
	"errors"
	"testing"

	"github.com/pedbender123/repforce-web-sub002/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_ValidTrail(t *testing.T) {
	v, err := NewDocumentValidator()
	require.NoError(t, err)

	assert.NoError(t, v.ValidateDocument(linearTrail()))
}

func TestDocument_NilTrail(t *testing.T) {
	v, err := NewDocumentValidator()
	require.NoError(t, err)

	err = v.ValidateDocument(nil)
	require.Error(t, err)
}

func TestDocument_DecisionMissingBranchLabel(t *testing.T) {
	v, err := NewDocumentValidator()
	require.NoError(t, err)

	raw := []byte(`{
		"name": "Gate trail",
		"trigger_type": "MANUAL",
		"nodes": {
			"start": {"id": "start", "name": "Start", "kind": "trigger"},
			"gate": {
				"id": "gate", "name": "Gate", "kind": "decision",
				"decision": {"condition": "[Status] = 'Active'", "next_true": ""}
			}
		}
	}`)

	err = v.ValidateDocumentBytes(raw)
	require.Error(t, err)

	var terr *schema.TrailError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, schema.ErrCodeValidation, terr.Code)
}

func TestDocument_UnknownTriggerType(t *testing.T) {
	v, err := NewDocumentValidator()
	require.NoError(t, err)

	raw := []byte(`{
		"name": "Bad trigger",
		"trigger_type": "CARRIER_PIGEON",
		"nodes": {"start": {"id": "start", "name": "Start", "kind": "trigger"}}
	}`)
	require.Error(t, v.ValidateDocumentBytes(raw))
}

func TestDocument_ActionNodeWithoutPayload(t *testing.T) {
	v, err := NewDocumentValidator()
	require.NoError(t, err)

	raw := []byte(`{
		"name": "Missing payload",
		"trigger_type": "MANUAL",
		"nodes": {
			"start": {"id": "start", "name": "Start", "kind": "trigger"},
			"a": {"id": "a", "name": "A", "kind": "action"}
		}
	}`)
	require.Error(t, v.ValidateDocumentBytes(raw))
}

func TestDocument_NotJSON(t *testing.T) {
	v, err := NewDocumentValidator()
	require.NoError(t, err)

	require.Error(t, v.ValidateDocumentBytes([]byte("not json at all")))
}

func TestBody_NoSchemaMeansNoValidation(t *testing.T) {
	v, err := NewDocumentValidator()
	require.NoError(t, err)

	assert.NoError(t, v.ValidateBody(map[string]any{"anything": 1}, nil))
}

func TestBody_SchemaEnforced(t *testing.T) {
	v, err := NewDocumentValidator()
	require.NoError(t, err)

	bodySchema := []byte(`{
		"type": "object",
		"required": ["customer"],
		"properties": {"customer": {"type": "string"}}
	}`)

	assert.NoError(t, v.ValidateBody(map[string]any{"customer": "Acme"}, bodySchema))

	err = v.ValidateBody(map[string]any{"customer": 42}, bodySchema)
	require.Error(t, err)

	err = v.ValidateBody(map[string]any{}, bodySchema)
	require.Error(t, err)
}

func TestBody_SchemaCached(t *testing.T) {
	v, err := NewDocumentValidator()
	require.NoError(t, err)

	bodySchema := []byte(`{"type": "object"}`)
	require.NoError(t, v.ValidateBody(map[string]any{}, bodySchema))
	require.NoError(t, v.ValidateBody(map[string]any{"x": true}, bodySchema))
	assert.Len(t, v.cache, 1)
}

func TestBody_InvalidSchema(t *testing.T) {
	v, err := NewDocumentValidator()
	require.NoError(t, err)

	err = v.ValidateBody(map[string]any{}, []byte(`{"type": 12}`))
	require.Error(t, err)
}
