package session

import (
	"encoding/json"
	"testing"

	"github.com/jonathan/cv-tailor/internal/stage"
	"github.com/jonathan/cv-tailor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_Empty(t *testing.T) {
	ch, err := NewBatch().Changes()
	require.NoError(t, err)
	assert.True(t, ch.Empty())

	ch, err = NewBatch().SetStage(stage.Extract).Changes()
	require.NoError(t, err)
	assert.False(t, ch.Empty())
	assert.False(t, ch.touchesContent())
}

func TestBatch_Accumulates(t *testing.T) {
	ref := &types.JobReference{Title: "Engineer"}
	b := NewBatch().
		Set("contact.phone", "123").
		Edits(Edit{Path: "profile", Value: json.RawMessage(`"Hello"`)}).
		Confirm("contact", true).
		Confirm("education", false).
		SetLanguage("de").
		SetJobReference(ref).
		AppendEvent(Event{Tool: "update_cv"}).
		RecordPack(json.RawMessage(`{}`)).
		SetProposal(&Proposal{Rationale: "tighten"})

	ch, err := b.Changes()
	require.NoError(t, err)
	require.Len(t, ch.Edits, 2)
	assert.Equal(t, json.RawMessage(`"123"`), ch.Edits[0].Value)
	assert.Equal(t, map[string]bool{"contact": true, "education": false}, ch.Meta.Confirm)
	assert.Equal(t, "de", *ch.Meta.Language)
	assert.Same(t, ref, ch.Meta.JobReference)
	assert.Len(t, ch.Events, 1)
	assert.NotNil(t, ch.Proposal)
	assert.False(t, ch.ClearProposal)
	assert.True(t, ch.touchesContent())

	ch, err = b.ClearProposal().Changes()
	require.NoError(t, err)
	assert.Nil(t, ch.Proposal)
	assert.True(t, ch.ClearProposal)
}

func TestBatch_OneSectionReplacement(t *testing.T) {
	_, err := NewBatch().
		ReplaceSection("skills", json.RawMessage(`[]`)).
		ReplaceSection("skills", json.RawMessage(`null`)).
		Changes()
	require.NoError(t, err)

	_, err = NewBatch().
		ReplaceSection("skills", json.RawMessage(`[]`)).
		ReplaceSection("languages", json.RawMessage(`[]`)).
		Changes()
	var editErr *EditError
	require.ErrorAs(t, err, &editErr)
}

func TestBatch_SetEncodeFailure(t *testing.T) {
	_, err := NewBatch().Set("profile", make(chan int)).Changes()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to encode value for profile")
}
