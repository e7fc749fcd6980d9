package converter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/labflow/internal/core/domain"
	"github.com/kirillkom/labflow/internal/core/ports"
)

// A PDF whose text layer yields less than this is treated as scanned and
// forwarded to the extraction service as a file block instead.
const minPDFTextChars = 120

// Converter turns stored uploads into ProcessedDocuments: plain text where a
// text layer exists, raw image/file payloads where it does not.
type Converter struct {
	storage ports.ObjectStorage
}

func New(storage ports.ObjectStorage) *Converter {
	return &Converter{storage: storage}
}

func (c *Converter) Convert(ctx context.Context, doc domain.SessionDocument) (domain.ProcessedDocument, error) {
	reader, err := c.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return domain.ProcessedDocument{}, fmt.Errorf("open stored document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return domain.ProcessedDocument{}, fmt.Errorf("read stored document: %w", err)
	}

	out := domain.ProcessedDocument{
		Filename: doc.Filename,
		MimeType: doc.MimeType,
	}

	switch kindOf(doc.MimeType, doc.Filename) {
	case kindPDF:
		return convertPDF(out, raw)
	case kindSpreadsheet:
		return convertXLSX(out, raw)
	case kindImage:
		out.ImagePages = [][]byte{raw}
		out.PageCount = 1
		return out, nil
	default:
		return convertPlainText(out, raw)
	}
}

type documentKind int

const (
	kindText documentKind = iota
	kindPDF
	kindSpreadsheet
	kindImage
)

func kindOf(mimeType, filename string) documentKind {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case mimeType == "application/pdf" || ext == ".pdf":
		return kindPDF
	case strings.Contains(mimeType, "spreadsheet") || ext == ".xlsx":
		return kindSpreadsheet
	case strings.HasPrefix(mimeType, "image/"):
		return kindImage
	default:
		return kindText
	}
}

func convertPlainText(out domain.ProcessedDocument, raw []byte) (domain.ProcessedDocument, error) {
	if !utf8.Valid(raw) {
		return domain.ProcessedDocument{}, fmt.Errorf("unsupported binary format: %s", out.Filename)
	}
	out.ExtractedText = strings.TrimSpace(string(raw))
	out.PageCount = 1
	return out, nil
}

func convertPDF(out domain.ProcessedDocument, raw []byte) (domain.ProcessedDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return domain.ProcessedDocument{}, fmt.Errorf("parse pdf: %w", err)
	}
	out.PageCount = reader.NumPage()

	text := pdfPlainText(reader)
	if len(text) < minPDFTextChars {
		// No usable text layer: hand the original file to the vision model.
		out.MimeType = "application/pdf"
		out.ImagePages = [][]byte{raw}
		return out, nil
	}
	out.ExtractedText = text
	return out, nil
}

func pdfPlainText(reader *pdf.Reader) string {
	content, err := reader.GetPlainText()
	if err != nil {
		return ""
	}
	var b strings.Builder
	if _, err := io.Copy(&b, content); err != nil {
		return ""
	}
	return strings.TrimSpace(b.String())
}

func convertXLSX(out domain.ProcessedDocument, raw []byte) (domain.ProcessedDocument, error) {
	book, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return domain.ProcessedDocument{}, fmt.Errorf("parse spreadsheet: %w", err)
	}
	defer book.Close()

	var b strings.Builder
	sheets := book.GetSheetList()
	for _, sheet := range sheets {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return domain.ProcessedDocument{}, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line != "" {
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
	}
	out.ExtractedText = strings.TrimSpace(b.String())
	out.PageCount = len(sheets)
	return out, nil
}
