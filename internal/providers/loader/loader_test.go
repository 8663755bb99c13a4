package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/docqa/internal/core"
)

func TestFileLoader_PlainText(t *testing.T) {
	l := NewFileLoader()

	text, err := l.Load("notes.txt", []byte("hello\nworld"))
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld", text)

	// Extension matching is case-insensitive.
	text, err = l.Load("NOTES.TXT", []byte("upper"))
	require.NoError(t, err)
	assert.Equal(t, "upper", text)
}

func TestFileLoader_Markdown(t *testing.T) {
	l := NewFileLoader()

	src := "# Refund Policy\n\nReturns are accepted within thirty days.\n\n- keep the receipt\n- original packaging"
	text, err := l.Load("policy.md", []byte(src))
	require.NoError(t, err)

	assert.Contains(t, text, "Refund Policy")
	assert.Contains(t, text, "Returns are accepted within thirty days")
	assert.Contains(t, text, "keep the receipt")
	assert.NotContains(t, text, "#")
}

func TestFileLoader_UnsupportedFormat(t *testing.T) {
	l := NewFileLoader()

	for _, name := range []string{"image.png", "archive.zip", "noextension"} {
		_, err := l.Load(name, []byte("data"))
		assert.ErrorIs(t, err, core.ErrUnsupportedFormat, name)
	}
}

func TestFileLoader_SupportedExtensions(t *testing.T) {
	exts := NewFileLoader().SupportedExtensions()

	for _, ext := range []string{".pdf", ".txt", ".docx", ".doc", ".md"} {
		assert.Contains(t, exts, ext)
	}
}
