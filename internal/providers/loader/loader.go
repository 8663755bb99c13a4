package loader

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"
	"github.com/gomarkdown/markdown"
	"github.com/inbucket/html2text"

	"github.com/sandevgo/docqa/internal/core"
)

// FileLoader extracts plain text from uploaded documents, dispatching on the
// filename extension. PDF and Word documents go through docconv; markdown is
// rendered and flattened so headings and lists survive as readable text.
type FileLoader struct{}

func NewFileLoader() *FileLoader {
	return &FileLoader{}
}

func (l *FileLoader) Load(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".txt":
		return string(data), nil
	case ".md":
		return markdownToText(data)
	case ".pdf", ".docx", ".doc":
		res, err := docconv.Convert(bytes.NewReader(data), docconv.MimeTypeByExtension(filename), false)
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", ext, err)
		}
		return res.Body, nil
	default:
		return "", fmt.Errorf("file type %q: %w", ext, core.ErrUnsupportedFormat)
	}
}

// SupportedExtensions lists the accepted file types.
func (l *FileLoader) SupportedExtensions() []string {
	return []string{".pdf", ".txt", ".docx", ".doc", ".md"}
}

func markdownToText(data []byte) (string, error) {
	html := markdown.ToHTML(data, nil, nil)
	text, err := html2text.FromString(string(html))
	if err != nil {
		return "", fmt.Errorf("flatten markdown: %w", err)
	}
	return text, nil
}
