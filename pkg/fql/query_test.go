package fql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, q *Query)
	}{
		{
			name:  "select by type",
			input: `SELECT w`,
			check: func(t *testing.T, q *Query) {
				assert.Equal(t, ActionSelect, q.Action)
				assert.Equal(t, "w", q.Type)
				assert.Equal(t, FormatXML, q.Format)
				assert.False(t, q.Mutates())
			},
		},
		{
			name:  "use with namespace and lowercase keywords",
			input: `use corpus/doc1 select w where text = "house" and pos != N format json`,
			check: func(t *testing.T, q *Query) {
				assert.Equal(t, "corpus", q.Namespace)
				assert.Equal(t, "doc1", q.DocID)
				require.Len(t, q.Where, 2)
				assert.Equal(t, Condition{Field: "text", Op: OpEqual, Value: "house"}, q.Where[0])
				assert.Equal(t, OpNotEqual, q.Where[1].Op)
				assert.Equal(t, FormatJSON, q.Format)
			},
		},
		{
			name:  "edit by id",
			input: `EDIT w ID "doc.w.1" WITH text "home" pos "NN"`,
			check: func(t *testing.T, q *Query) {
				assert.Equal(t, ActionEdit, q.Action)
				assert.Equal(t, "doc.w.1", q.ID)
				assert.Equal(t, []Assignment{{Field: "text", Value: "home"}, {Field: "pos", Value: "NN"}}, q.Assign)
				assert.True(t, q.Mutates())
			},
		},
		{
			name:  "add",
			input: `ADD w WITH text "new" FOR ID doc.s.1`,
			check: func(t *testing.T, q *Query) {
				assert.Equal(t, ActionAdd, q.Action)
				assert.Equal(t, "doc.s.1", q.Target)
			},
		},
		{
			name:  "delete with regex",
			input: `DELETE w WHERE text MATCHES "^h.*e$"`,
			check: func(t *testing.T, q *Query) {
				assert.Equal(t, ActionDelete, q.Action)
				assert.Equal(t, OpMatches, q.Where[0].Op)
			},
		},
		{
			name:  "cql",
			input: `[pos="DET"] [text="house" & lemma="house"] FORMAT text`,
			check: func(t *testing.T, q *Query) {
				assert.True(t, q.IsCQL())
				require.Len(t, q.Pattern, 2)
				assert.Len(t, q.Pattern[1], 2)
				assert.Equal(t, FormatText, q.Format)
			},
		},
		{
			name:  "escaped quote",
			input: `SELECT w WHERE text = "say \"hi\""`,
			check: func(t *testing.T, q *Query) {
				assert.Equal(t, `say "hi"`, q.Where[0].Value)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(tt.input)
			require.NoError(t, err)
			tt.check(t, q)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown action", `FETCH w`},
		{"missing type", `SELECT`},
		{"edit without with", `EDIT w ID x`},
		{"edit id", `EDIT w WITH id "x"`},
		{"add without target", `ADD w WITH text "x"`},
		{"bad operator", `SELECT w WHERE text ~ "x"`},
		{"bad regex", `SELECT w WHERE text MATCHES "("`},
		{"unterminated string", `SELECT w WHERE text = "x`},
		{"trailing tokens", `SELECT w FORMAT json extra`},
		{"unknown format", `SELECT w FORMAT yaml`},
		{"unclosed cql", `[pos="N"`},
		{"cql contains", `[text CONTAINS "x"]`},
		{"slash in field", `EDIT w ID "example.p.1.s.1.w.1" WITH a/b "x"`},
		{"prefixed field", `EDIT w WITH x:pos "N"`},
		{"field starting with digit", `EDIT w WITH 1pos "N"`},
		{"prefixed add type", `ADD x:y WITH text "a" FOR ID "example.p.1.s.1"`},
		{"wildcard add type", `ADD * WITH text "a" FOR ID "example.p.1.s.1"`},
		{"slash in type", `SELECT a/b`},
		{"slash in condition field", `SELECT w WHERE a/b = "x"`},
		{"wildcard condition field", `SELECT w WHERE * = "x"`},
		{"slash in cql field", `[a/b="x"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			var se *SyntaxError
			assert.ErrorAs(t, err, &se)
		})
	}
}

func TestParseQueries(t *testing.T) {
	qs, err := ParseQueries("SELECT w\n\n# comment\nDELETE s ID x\n")
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "SELECT w", qs[0].Raw)
	assert.Equal(t, ActionDelete, qs[1].Action)

	_, err = ParseQueries("  \n# nothing\n")
	assert.Error(t, err)
}
