package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrUnreadableFile  = errors.New("unreadable file")
)

// DecodeFile turns an uploaded spreadsheet into raw records. CSV is decoded
// as text (charset-aware), .xls/.xlsx as binary workbooks, first sheet only.
// Blank cells become nil values.
func DecodeFile(filename string, data []byte) ([]Record, error) {
	switch strings.ToLower(strings.TrimSpace(filepath.Ext(filename))) {
	case ".csv":
		return decodeCSV(data)
	case ".xlsx":
		return decodeXLSX(data)
	case ".xls":
		return decodeXLS(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(filename))
	}
}

func decodeCSV(data []byte) ([]Record, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = detectDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	grid, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	return gridToRecords(grid), nil
}

func decodeXLSX(data []byte) ([]Record, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	defer file.Close()

	sheetName := file.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrUnreadableFile)
	}
	grid, err := file.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	return gridToRecords(grid), nil
}

func decodeXLS(data []byte) ([]Record, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		// Plenty of ".xls" exports are actually xlsx; try that before
		// giving up.
		if records, errX := decodeXLSX(data); errX == nil {
			return records, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}

	sheet, err := workbook.GetSheet(0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}

	var grid [][]string
	for _, row := range sheet.GetRows() {
		var cells []string
		for _, col := range row.GetCols() {
			cells = append(cells, col.GetString())
		}
		grid = append(grid, cells)
	}
	return gridToRecords(grid), nil
}

// gridToRecords treats the first grid row as headers and the rest as data.
// Cells missing from short rows and empty strings both map to nil.
func gridToRecords(grid [][]string) []Record {
	if len(grid) == 0 {
		return nil
	}
	headers := grid[0]

	records := make([]Record, 0, len(grid)-1)
	for i, row := range grid[1:] {
		values := make([]any, len(headers))
		for col := range headers {
			if col < len(row) && strings.TrimSpace(row[col]) != "" {
				values[col] = row[col]
			}
		}
		records = append(records, NewRecord(i+2, headers, values))
	}
	return records
}

// decodeText converts CSV bytes to UTF-8. UTF-16 input is recognized by its
// BOM; BOM-less input that is not valid UTF-8 is assumed to be Latin-1, the
// usual encoding of legacy pt-BR exports.
func decodeText(data []byte) (string, error) {
	if len(data) >= 2 && (data[0] == 0xfe && data[1] == 0xff || data[0] == 0xff && data[1] == 0xfe) {
		decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
		decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), decoder))
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}

	data = bytes.TrimPrefix(data, []byte{0xef, 0xbb, 0xbf})
	if utf8.Valid(data) {
		return string(data), nil
	}

	latin, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), charmap.ISO8859_1.NewDecoder()))
	if err != nil {
		return "", err
	}
	return string(latin), nil
}

// detectDelimiter picks ';' over ',' when the header line uses it, which is
// what pt-BR spreadsheet exports do.
func detectDelimiter(text string) rune {
	line := text
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		line = text[:idx]
	}
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}
