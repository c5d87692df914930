package bulk

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyFile is returned when a bulk file has no rows.
var ErrEmptyFile = errors.New("empty file")

// Row is a CSV row keyed by header.
type Row map[string]string

// ReadCSV reads rows of r into Rows keyed by headers. The first row is
// skipped when it equals headers. Missing trailing columns are empty.
func ReadCSV(r io.Reader, headers []string) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}
	if isHeader(records[0], headers) {
		records = records[1:]
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		row := make(Row, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isHeader(rec, headers []string) bool {
	if len(rec) != len(headers) {
		return false
	}
	for i := range rec {
		if strings.TrimSpace(rec[i]) != headers[i] {
			return false
		}
	}
	return true
}

// ReadFlatFile returns the trimmed, non-blank lines of r. A first line equal
// to header is skipped so generated templates can be read back.
func ReadFlatFile(r io.Reader, header string) ([]string, error) {
	var rows []string
	first := true
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if first && header != "" && strings.EqualFold(line, header) {
			first = false
			continue
		}
		first = false
		rows = append(rows, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return rows, nil
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string, headers []string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := ReadCSV(f, headers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// ReadFlatFileAt opens path and reads it with ReadFlatFile.
func ReadFlatFileAt(path, header string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := ReadFlatFile(f, header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// WriteTemplate writes a CSV file holding only the header row.
func WriteTemplate(w io.Writer, headers []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// GenerateTemplate writes <name>.csv with headers into dir and returns its
// path. An existing file is overwritten.
func GenerateTemplate(dir, name string, headers []string) (string, error) {
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating template: %w", err)
	}
	if err := WriteTemplate(f, headers); err != nil {
		f.Close()
		return "", fmt.Errorf("writing template: %w", err)
	}
	return path, f.Close()
}
