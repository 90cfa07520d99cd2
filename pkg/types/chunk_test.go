package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr error
	}{
		{name: "valid code", code: "def f(): pass"},
		{name: "empty code", code: "", wantErr: ErrEmptyCode},
		{name: "whitespace code", code: " \n\t ", wantErr: ErrEmptyCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ChunkRecord{FilePath: "a.py", StartLine: 1, SymbolName: "f", Code: tt.code}
			err := rec.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestChunkRecordKey(t *testing.T) {
	a := ChunkRecord{FilePath: "a.py", StartLine: 3, SymbolName: "f", Code: "x", Language: "python"}
	b := ChunkRecord{FilePath: "a.py", StartLine: 3, SymbolName: "f", Code: "y", Language: "go"}
	c := ChunkRecord{FilePath: "a.py", StartLine: 4, SymbolName: "f", Code: "x"}

	assert.Equal(t, a.Key(), b.Key(), "key ignores non-identity fields")
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, "a.py:3:f", a.Key().String())

	seen := map[IdentityKey]bool{a.Key(): true}
	assert.True(t, seen[b.Key()])
}

func TestChunkRecordField(t *testing.T) {
	rec := ChunkRecord{RepoID: "r1", Language: "go", SymbolType: SymbolCall, StartLine: 7}

	v, ok := rec.Field("repo_id")
	require.True(t, ok)
	assert.Equal(t, "r1", v)

	v, ok = rec.Field("symbol_type")
	require.True(t, ok)
	assert.Equal(t, "call", v)

	v, ok = rec.Field("start_line")
	require.True(t, ok)
	assert.Equal(t, "7", v)

	_, ok = rec.Field("unknown")
	assert.False(t, ok)
}

func TestEmbeddingText(t *testing.T) {
	rec := ChunkRecord{SymbolName: "parse", Docstring: "Parse a file.", Code: "func parse() {}"}
	assert.Equal(t, "parse\nParse a file.", rec.EmbeddingText())

	bare := ChunkRecord{Code: "x := 1"}
	assert.Equal(t, "x := 1", bare.EmbeddingText())
}

func TestSymbolTypeIsDoc(t *testing.T) {
	assert.True(t, SymbolDoc.IsDoc())
	assert.True(t, SymbolDocstring.IsDoc())
	assert.False(t, SymbolFunction.IsDoc())
	assert.False(t, SymbolCall.IsDoc())
}

func TestRankedResultValidate(t *testing.T) {
	ok := RankedResult{Rank: 1, Score: 0.5, ChunkRecord: ChunkRecord{Code: "x"}}
	assert.NoError(t, ok.Validate())

	badRank := ok
	badRank.Rank = 0
	assert.ErrorIs(t, badRank.Validate(), ErrInvalidRank)

	badScore := ok
	badScore.Score = 1.2
	assert.ErrorIs(t, badScore.Validate(), ErrInvalidRelevanceScore)

	noCode := ok
	noCode.Code = ""
	assert.ErrorIs(t, noCode.Validate(), ErrEmptyContent)
}
