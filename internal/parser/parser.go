package parser

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"document-qa/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

// Parser extracts text segments from a document file
type Parser interface {
	Extract(filePath string) ([]models.Segment, error)
}

// FileParser picks an extractor by file extension
type FileParser struct{}

func New() *FileParser {
	return &FileParser{}
}

const defaultPageNumber = 1

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// SupportedExtensions lists the file extensions Extract understands
func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".pptx", ".xlsx", ".xlsm", ".md", ".markdown", ".txt"}
}

func (p *FileParser) Extract(filePath string) ([]models.Segment, error) {
	return Extract(filePath)
}

// Extract reads filePath and returns its text split into segments (pages, slides or sheets).
// A missing file yields ErrFileNotFound; anything else that goes wrong yields ErrExtractionFailed.
func Extract(filePath string) (segments []models.Segment, err error) {
	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrFileNotFound, filePath)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrExtractionFailed, err)
	}

	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			segments = nil
			err = fmt.Errorf("%w: %s: %v", models.ErrExtractionFailed, filePath, r)
		}
	}()

	source := filepath.Base(filePath)
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		segments, err = parsePDF(filePath, source)
	case ".docx":
		segments, err = parseDOCX(filePath, source)
	case ".pptx":
		segments, err = parsePPTX(filePath, source)
	case ".xlsx", ".xlsm":
		segments, err = parseSpreadsheet(filePath, source)
	case ".md", ".markdown":
		segments, err = parseMarkdown(filePath, source)
	case ".txt":
		segments, err = parseText(filePath, source)
	default:
		return nil, fmt.Errorf("%w: unsupported file format: %s", models.ErrExtractionFailed, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrExtractionFailed, filePath, err)
	}

	log.Debug().Str("file", filePath).Int("segments", len(segments)).Msg("Extracted document")
	return segments, nil
}

func parsePDF(filePath, source string) ([]models.Segment, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Get file size for reader initialization
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var segments []models.Segment
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %v", i, err)
		}
		segments = appendSegment(segments, pageText, source, i)
	}
	return segments, nil
}

func parseDOCX(filePath, source string) ([]models.Segment, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	text, err := extractTextFromXML(r.Editable().GetContent())
	if err != nil {
		return nil, err
	}
	// DOCX has no page numbers
	return appendSegment(nil, text, source, defaultPageNumber), nil
}

func parsePPTX(filePath, source string) ([]models.Segment, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		m := slideNameRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: num, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var segments []models.Segment
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		slideText, err := extractTextFromXML(string(data))
		if err != nil {
			return nil, fmt.Errorf("slide %d: %v", s.num, err)
		}
		segments = appendSegment(segments, slideText, source, s.num)
	}
	return segments, nil
}

// parseSpreadsheet reads one segment per sheet. excelize is tried first,
// tealeg/xlsx reads some files written by older producers that excelize rejects.
func parseSpreadsheet(filePath, source string) ([]models.Segment, error) {
	segments, err := parseExcelize(filePath, source)
	if err == nil {
		return segments, nil
	}
	log.Debug().Err(err).Str("file", filePath).Msg("excelize failed, falling back to xlsx reader")
	return parseXLSX(filePath, source)
}

func parseExcelize(filePath, source string) ([]models.Segment, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var segments []models.Segment
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		segments = appendSegment(segments, text.String(), source, sheetNum+1)
	}
	return segments, nil
}

func parseXLSX(filePath, source string) ([]models.Segment, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var segments []models.Segment
	for sheetNum, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			text.WriteString(strings.Join(cells, "\t"))
			text.WriteString("\n")
		}
		segments = appendSegment(segments, text.String(), source, sheetNum+1)
	}
	return segments, nil
}

func parseText(filePath, source string) ([]models.Segment, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return appendSegment(nil, string(data), source, defaultPageNumber), nil
}

// appendSegment skips blank text
func appendSegment(segments []models.Segment, text, source string, page int) []models.Segment {
	text = strings.TrimSpace(text)
	if text == "" {
		return segments
	}
	return append(segments, models.Segment{
		Content:    text,
		Source:     source,
		PageNumber: page,
	})
}

// extractTextFromXML collects the text runs (<w:t>, <a:t>) of an office XML part,
// with a blank line after every paragraph (<w:p>, <a:p>).
func extractTextFromXML(xmlContent string) (string, error) {
	var text strings.Builder
	dec := xml.NewDecoder(strings.NewReader(xmlContent))
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		}
	}
	return strings.TrimSpace(text.String()), nil
}
