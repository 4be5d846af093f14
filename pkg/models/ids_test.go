package models

import (
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentenceIDJSONRoundTrip(t *testing.T) {
	id := NewSentenceID()

	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.JSONEq(t, `"`+id.String()+`"`, string(data))

	var decoded SentenceID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded)
}

func TestSentenceIDCBORRoundTrip(t *testing.T) {
	id := NewSentenceID()

	data, err := cbor.Marshal(id)
	require.NoError(t, err)

	var decoded SentenceID
	require.NoError(t, decoded.UnmarshalCBOR(data))
	assert.Equal(t, id, decoded)
}

func TestSentenceIDCBORRejectsWrongTable(t *testing.T) {
	userID := NewUserID()
	data, err := cbor.Marshal(userID)
	require.NoError(t, err)

	var decoded SentenceID
	err = decoded.UnmarshalCBOR(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected table sentences")
}

func TestParseSentenceID(t *testing.T) {
	id := NewSentenceID()

	parsed, err := ParseSentenceID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseSentenceID("not-a-uuid")
	assert.Error(t, err)
}

func TestSentenceIDRecordID(t *testing.T) {
	id := NewSentenceID()
	rid := id.RecordID()
	assert.Equal(t, "sentences", rid.Table)
	assert.Equal(t, id.String(), rid.ID)
}

func TestUserIDRecordID(t *testing.T) {
	id := NewUserID()
	rid := id.RecordID()
	assert.Equal(t, "users", rid.Table)
	assert.Equal(t, id.String(), rid.ID)
}

func TestIDIsZero(t *testing.T) {
	assert.True(t, SentenceID{}.IsZero())
	assert.True(t, UserID{}.IsZero())
	assert.False(t, NewSentenceID().IsZero())
	assert.False(t, NewUserID().IsZero())
}
