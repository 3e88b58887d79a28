package evidence

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var textExtensions = map[string]bool{".txt": true, ".md": true, ".csv": true, ".log": true, ".json": true}

// ExtractText returns the readable text of an uploaded evidence file.
// PDFs are parsed page by page; text files are read as-is.
func ExtractText(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	var text string
	switch {
	case ext == ".pdf":
		extracted, err := extractPDF(data)
		if err != nil {
			return "", ErrEvidenceType.Withf("could not read pdf: %v", err)
		}
		text = extracted
	case textExtensions[ext]:
		if !utf8.Valid(data) {
			return "", ErrEvidenceType.Withf("%s is not valid utf-8 text", filename)
		}
		text = string(data)
	default:
		return "", ErrEvidenceType
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEvidenceEmpty
	}
	return text, nil
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "%s\n\n", text)
	}
	return b.String(), nil
}
