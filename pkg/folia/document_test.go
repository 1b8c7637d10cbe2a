package folia

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadExample(t *testing.T) *Document {
	t.Helper()
	f, err := os.Open("testdata/example.folia.xml")
	require.NoError(t, err)
	defer f.Close()

	doc, err := Parse(f)
	require.NoError(t, err)
	return doc
}

func TestParse(t *testing.T) {
	doc := loadExample(t)

	assert.Equal(t, "example", doc.ID())
	assert.Equal(t, "FoLiA", doc.Root.Name)

	w, err := doc.Element("example.p.1.s.1.w.2")
	require.NoError(t, err)
	assert.Equal(t, "w", w.Name)
	assert.Equal(t, "house", w.Text())

	pos, ok := w.Annotation("pos")
	assert.True(t, ok)
	assert.Equal(t, "N", pos)

	s, err := doc.Element("example.p.1.s.1")
	require.NoError(t, err)
	assert.Equal(t, "The house stands", s.Text())

	_, err = doc.Element("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{
			name:    "no id",
			input:   `<FoLiA xmlns="http://ilk.uvt.nl/folia"><text/></FoLiA>`,
			wantErr: ErrNoDocumentID,
		},
		{
			name:    "duplicate id",
			input:   `<FoLiA xml:id="d"><text xml:id="x"/><text xml:id="x"/></FoLiA>`,
			wantErr: ErrDuplicateID,
		},
		{
			name:    "malformed",
			input:   `<FoLiA xml:id="d"><text>`,
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "empty",
			input:   ``,
			wantErr: ErrInvalidDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	doc := loadExample(t)
	first := doc.String()

	assert.Contains(t, first, `xmlns="http://ilk.uvt.nl/folia"`)
	assert.Contains(t, first, `xmlns:xlink="http://www.w3.org/1999/xlink"`)
	assert.Contains(t, first, `xlink:href="https://example.org"`)
	assert.Contains(t, first, `<t>house</t>`)

	again, err := Parse(strings.NewReader(first))
	require.NoError(t, err)
	assert.Equal(t, first, again.String())
	assert.Equal(t, doc.Len(), again.Len())
}

func TestSelect(t *testing.T) {
	doc := loadExample(t)

	words := doc.Select("w")
	require.Len(t, words, 6)
	assert.Equal(t, "example.p.1.s.1.w.1", words[0].ID)
	assert.Equal(t, "example.p.1.s.2.w.3", words[5].ID)

	all := doc.Select("*")
	assert.Len(t, all, doc.Len())
}

func TestAppendAndRemove(t *testing.T) {
	doc := loadExample(t)

	s, err := doc.Element("example.p.1.s.1")
	require.NoError(t, err)

	w, err := doc.Append(s, "w")
	require.NoError(t, err)
	assert.Equal(t, "example.p.1.s.1.w.4", w.ID)
	w.SetText("tall")

	got, err := doc.Element(w.ID)
	require.NoError(t, err)
	assert.Equal(t, "tall", got.Text())
	assert.Equal(t, "The house stands tall", s.Text())

	require.NoError(t, doc.Remove(s))
	_, err = doc.Element("example.p.1.s.1.w.1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = doc.Element(w.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, doc.Remove(doc.Root))
}

func TestAppendAvoidsTakenIDs(t *testing.T) {
	doc := loadExample(t)
	s, err := doc.Element("example.p.1.s.2")
	require.NoError(t, err)

	w1, err := doc.Element("example.p.1.s.2.w.1")
	require.NoError(t, err)
	require.NoError(t, doc.Remove(w1))

	// Two w children remain, so the first candidate is w.3, which is taken.
	w, err := doc.Append(s, "w")
	require.NoError(t, err)
	assert.Equal(t, "example.p.1.s.2.w.4", w.ID)
}

func TestFields(t *testing.T) {
	doc := loadExample(t)
	w, err := doc.Element("example.p.1.s.1.w.3")
	require.NoError(t, err)

	v, ok := w.Field("text")
	assert.True(t, ok)
	assert.Equal(t, "stands", v)

	v, _ = w.Field("type")
	assert.Equal(t, "w", v)

	v, _ = w.Field("lemma")
	assert.Equal(t, "stand", v)

	_, ok = w.Field("sense")
	assert.False(t, ok)

	require.NoError(t, w.SetField("pos", "VERB"))
	require.NoError(t, w.SetField("class", "WORD"))
	require.NoError(t, w.SetField("sense", "s1"))
	require.NoError(t, w.SetField("text", "stood"))

	v, _ = w.Field("pos")
	assert.Equal(t, "VERB", v)
	assert.Equal(t, "WORD", w.Class())
	v, _ = w.Field("sense")
	assert.Equal(t, "s1", v)
	assert.Equal(t, "stood", w.Text())

	var fe *FieldError
	assert.ErrorAs(t, w.SetField("id", "other"), &fe)
}

func TestInvalidNames(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"pos", true},
		{"_x", true},
		{"sense-2.b", true},
		{"étiquette", true},
		{"", false},
		{"a/b", false},
		{"x:pos", false},
		{"2pos", false},
		{"-pos", false},
		{"*", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidName(tt.name))
		})
	}

	doc := loadExample(t)
	s, err := doc.Element("example.p.1.s.1")
	require.NoError(t, err)
	w, err := doc.Element("example.p.1.s.1.w.1")
	require.NoError(t, err)

	assert.ErrorIs(t, w.SetField("a/b", "x"), ErrInvalidName)
	_, err = doc.Append(s, "x:y")
	assert.ErrorIs(t, err, ErrInvalidName)

	// Nothing was written, so the document still parses.
	_, err = Parse(strings.NewReader(doc.String()))
	require.NoError(t, err)
}

func TestNew(t *testing.T) {
	doc := New("fresh")
	body, err := doc.Element("fresh.text")
	require.NoError(t, err)

	p, err := doc.Append(body, "p")
	require.NoError(t, err)
	assert.Equal(t, "fresh.text.p.1", p.ID)

	parsed, err := Parse(strings.NewReader(doc.String()))
	require.NoError(t, err)
	assert.Equal(t, "fresh", parsed.ID())
	_, err = parsed.Element("fresh.text.p.1")
	assert.NoError(t, err)
}

func TestElementJSON(t *testing.T) {
	doc := loadExample(t)
	w, err := doc.Element("example.p.1.s.1.w.1")
	require.NoError(t, err)

	data, err := json.Marshal(w)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "w", decoded["type"])
	assert.Equal(t, "example.p.1.s.1.w.1", decoded["id"])
	assert.Equal(t, "The", decoded["text"])
	children, ok := decoded["children"].([]any)
	require.True(t, ok)
	assert.Len(t, children, 2)
}

func TestElementXML(t *testing.T) {
	doc := loadExample(t)
	w, err := doc.Element("example.p.1.s.1.w.2")
	require.NoError(t, err)

	out := doc.ElementXML(w)
	assert.True(t, strings.HasPrefix(out, `<w xml:id="example.p.1.s.1.w.2">`))
	assert.Contains(t, out, `<pos class="N"/>`)
	assert.True(t, strings.HasSuffix(out, "</w>"))
}
