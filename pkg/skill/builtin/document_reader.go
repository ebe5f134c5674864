package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/connexhq/connex/pkg/skill"
)

type documentReaderInputs struct {
	Path string `json:"path" jsonschema:"required,description=Path to the document"`
}

// DocumentReader extracts plain text from PDF, Word and Excel documents.
// Anything else is read as plain text.
type DocumentReader struct {
	skill.Base
}

func NewDocumentReader() *DocumentReader {
	return &DocumentReader{
		Base: skill.NewBase(&skill.Info{
			Name:        "document_reader",
			Description: "Extracts text content from PDF, DOCX, XLSX and plain text documents",
			Category:    "io",
			SubCategory: "documents",
			Inputs:      skill.SchemaFor[documentReaderInputs](),
			Outputs:     skill.OutputSchema{"content": "string"},
		}),
	}
}

func (s *DocumentReader) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	path := fmt.Sprint(inputs["path"])
	if !filepath.IsAbs(path) && s.DataDir() != "" {
		path = filepath.Join(s.DataDir(), path)
	}

	var (
		content string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		content, err = readPDF(path)
	case ".docx":
		content, err = readDocx(path)
	case ".xlsx":
		content, err = readXlsx(path)
	default:
		var data []byte
		data, err = os.ReadFile(path)
		content = string(data)
	}
	if err != nil {
		return map[string]interface{}{"success": false, "error": fmt.Sprintf("failed to read %s: %v", path, err)}, nil
	}

	return map[string]interface{}{"success": true, "content": content}, nil
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func readDocx(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", err
	}
	defer r.Close()
	return r.Editable().GetContent(), nil
}

func readXlsx(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		sb.WriteString(sheet)
		sb.WriteString(":\n")
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
