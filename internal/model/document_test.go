package model

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSourceType(t *testing.T) {
	tests := []struct {
		raw  string
		want SourceType
	}{
		{"email", SourceEmail},
		{" Attachment ", SourceAttachment},
		{"URL_PDF", SourceURLPDF},
		{"sec_filing", SourceSECFiling},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseSourceType(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseSourceType_Unknown(t *testing.T) {
	_, err := ParseSourceType("fax")
	require.Error(t, err)
	assert.True(t, IsInputError(err))
	assert.Contains(t, err.Error(), "source_type")
}

func TestIsInputError_Wrapped(t *testing.T) {
	base := NewInputError("query", "must not be null")
	wrapped := eris.Wrap(base, "evaluate")
	assert.True(t, IsInputError(wrapped))
	assert.False(t, IsInputError(errors.New("other")))
	assert.Equal(t, "invalid input: query: must not be null", base.Error())
}

func TestInputError_NoField(t *testing.T) {
	err := &InputError{Reason: "empty body"}
	assert.Equal(t, "invalid input: empty body", err.Error())
}

func TestManifestRecord_CloneIsDeep(t *testing.T) {
	r := ManifestRecord{ContentHash: "abc", CoverageNotes: []string{"AAPL via email"}}
	c := r.Clone()
	c.CoverageNotes[0] = "changed"
	assert.Equal(t, "AAPL via email", r.CoverageNotes[0])
}

func TestParseSourceTypes(t *testing.T) {
	all, err := ParseSourceTypes(nil)
	require.NoError(t, err)
	assert.Equal(t, SourceTypes, all)

	got, err := ParseSourceTypes([]string{"Email", "sec_filing"})
	require.NoError(t, err)
	assert.Equal(t, []SourceType{SourceEmail, SourceSECFiling}, got)

	_, err = ParseSourceTypes([]string{"email", "carrier pigeon"})
	assert.True(t, IsInputError(err))
}
