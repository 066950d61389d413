package inifile

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"single section", "[Python]\nPath32bit=C:/old\nPath64bit=C:/old\n"},
		{"no trailing newline", "[General]\nFirstRun=true"},
		{"crlf", "[General]\r\nFirstRun=true\r\n\r\n[Python]\r\nPath64bit=C:/Python311\r\n"},
		{"bom", "\xEF\xBB\xBF[General]\nPre19Defaults=false\n"},
		{"comments and blanks", "; generated\n\n[General]\n# note\nName = value with spaces  \n\n\n"},
		{"preamble keys", "orphan=1\n[General]\nx=y\n"},
		{"duplicate sections", "[A]\nk=1\n[B]\nj=2\n[A]\nk=3\n"},
		{"empty values", "[BasicWindow]\ngeometry=\nDockState=\n"},
		{"value with equals", "[Video]\nFilter=a=b=c\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.input))
			require.NoError(t, err)

			if diff := cmp.Diff(tt.input, string(doc.Serialize())); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unterminated header", "[Python\nPath32bit=x\n"},
		{"bare word", "[General]\njusttext\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedConfig))
		})
	}
}

func TestGet(t *testing.T) {
	doc, err := Parse([]byte("top=level\n[Python]\nPath32bit=C:/old\n[Other]\nk=v\n[Python]\nPath32bit=C:/later\n"))
	require.NoError(t, err)

	v, ok := doc.Get("Python", "Path32bit")
	assert.True(t, ok)
	assert.Equal(t, "C:/later", v, "later duplicate section should win")

	v, ok = doc.Get("", "top")
	assert.True(t, ok)
	assert.Equal(t, "level", v)

	_, ok = doc.Get("Python", "Path64bit")
	assert.False(t, ok)

	assert.Equal(t, []string{"", "Python", "Other"}, doc.Sections())
	assert.Equal(t, []string{"Path32bit"}, doc.Keys("Python"))
	assert.True(t, doc.HasSection("Other"))
	assert.False(t, doc.HasSection("Missing"))
}

func TestSet_ExistingKey(t *testing.T) {
	doc, err := Parse([]byte("[General]\nA=1\n\n[Python]\nPath32bit=C:/old\nPath64bit=C:/old\n"))
	require.NoError(t, err)

	doc.Set("Python", "Path32bit", "C:/new")
	doc.Set("Python", "Path64bit", "C:/new")

	assert.Equal(t, "[General]\nA=1\n\n[Python]\nPath32bit=C:/new\nPath64bit=C:/new\n", string(doc.Serialize()))
}

func TestSet_KeepsKeySpacing(t *testing.T) {
	doc, err := Parse([]byte("[Python]\nPath32bit = C:/old\n"))
	require.NoError(t, err)

	doc.Set("Python", "Path32bit", "C:/new")
	assert.Equal(t, "[Python]\nPath32bit =C:/new\n", string(doc.Serialize()))
}

func TestSet_NewKeyBeforeTrailingBlank(t *testing.T) {
	doc, err := Parse([]byte("[Python]\nPath32bit=C:/x\n\n[General]\nA=1\n"))
	require.NoError(t, err)

	doc.Set("Python", "Path64bit", "C:/x")
	assert.Equal(t, "[Python]\nPath32bit=C:/x\nPath64bit=C:/x\n\n[General]\nA=1\n", string(doc.Serialize()))
}

func TestSet_NewSection(t *testing.T) {
	doc, err := Parse([]byte("[General]\r\nA=1"))
	require.NoError(t, err)

	doc.Set("Python", "Path32bit", "C:/new")
	doc.Set("Python", "Path64bit", "C:/new")

	want := "[General]\r\nA=1\r\n\r\n[Python]\r\nPath32bit=C:/new\r\nPath64bit=C:/new\r\n"
	assert.Equal(t, want, string(doc.Serialize()))
}

func TestSet_EmptyDocument(t *testing.T) {
	doc := New()
	doc.Set("Python", "Path64bit", "/usr")

	assert.Equal(t, "[Python]\nPath64bit=/usr\n", string(doc.Serialize()))
}

func TestSet_DuplicateSectionsUpdatesEveryOccurrence(t *testing.T) {
	doc, err := Parse([]byte("[A]\nk=1\n[B]\nj=2\n[A]\nk=3\n"))
	require.NoError(t, err)

	doc.Set("A", "k", "9")
	doc.Set("A", "n", "new")

	assert.Equal(t, "[A]\nk=9\n[B]\nj=2\n[A]\nk=9\nn=new\n", string(doc.Serialize()))
}

func TestBOMPreserved(t *testing.T) {
	doc, err := Parse([]byte("\xEF\xBB\xBF[Python]\nPath32bit=a\n"))
	require.NoError(t, err)
	assert.True(t, doc.HasBOM())

	doc.Set("Python", "Path32bit", "b")
	assert.Equal(t, "\xEF\xBB\xBF[Python]\nPath32bit=b\n", string(doc.Serialize()))

	plain, err := Parse([]byte("[Python]\nPath32bit=a\n"))
	require.NoError(t, err)
	assert.False(t, plain.HasBOM())
}

func TestClone_Independent(t *testing.T) {
	doc, err := Parse([]byte("[Python]\nPath32bit=a\n"))
	require.NoError(t, err)

	clone := doc.Clone()
	clone.Set("Python", "Path32bit", "b")
	clone.Set("Extra", "k", "v")

	v, _ := doc.Get("Python", "Path32bit")
	assert.Equal(t, "a", v)
	assert.Equal(t, "[Python]\nPath32bit=a\n", string(doc.Serialize()))
}
