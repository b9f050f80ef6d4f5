package example

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/patrikhermansson/colsel/core"
)

// DefaultNA lists the cell values read as missing when no tokens are given.
var DefaultNA = []string{"", "NA", "NaN"}

// LoadCSV reads an observation matrix from a CSV file. Cells equal to one of
// the na tokens (after trimming) are marked missing; a nil na uses DefaultNA.
func LoadCSV(path string, skipHeader bool, na []string) (*core.Data, error) {
	log.Info().Msgf("Loading CSV file: %s", path)
	rows, err := readCSV[float64](path, skipHeader, naSet(na))
	if err != nil {
		return nil, err
	}
	d, err := core.NewDataFromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to build matrix from %s: %w", path, err)
	}
	n, p := d.Dims()
	log.Info().Msgf("Loaded %dx%d matrix from %s (%.1f%% missing)", n, p, path, 100*d.MissingFraction())
	return d, nil
}

// LoadSubset reads a reference subset: the column indices on the first row of a CSV file.
func LoadSubset(path string) ([]int, error) {
	rows, err := readCSV[int](path, false, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty subset file %s: %w", path, core.ErrInvalidSubset)
	}
	return rows[0], nil
}

// WriteCSV writes d as CSV with missing cells set to na. When header is true
// a first row of column names x0..x{p-1} is written.
func WriteCSV(path string, d *core.Data, header bool, na string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := writeCSV(file, d, header, na); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

func writeCSV(w io.Writer, d *core.Data, header bool, na string) error {
	n, p := d.Dims()
	cw := csv.NewWriter(w)
	record := make([]string, p)
	if header {
		for j := range record {
			record[j] = "x" + strconv.Itoa(j)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			if v, ok := d.At(i, j); ok {
				record[j] = strconv.FormatFloat(v, 'g', -1, 64)
			} else {
				record[j] = na
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func naSet(tokens []string) map[string]struct{} {
	if tokens == nil {
		tokens = DefaultNA
	}
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[strings.TrimSpace(tok)] = struct{}{}
	}
	return set
}

// readCSV is a generic CSV reader for types: int and float64.
// Cells found in na become NaN for float64 and an error for int.
func readCSV[T int | float64](path string, skipHeader bool, na map[string]struct{}) ([][]T, error) {
	log.Debug().Msgf("Opening CSV file: %s", path)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	var result [][]T

	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read error in %s: %w", path, err)
		}
		if skipHeader {
			skipHeader = false
			continue
		}
		row := make([]T, len(record))
		for i, val := range record {
			parsed, err := parseValue[T](val, na)
			if err != nil {
				return nil, fmt.Errorf("parse error at line %d col %d in %s: %w", line, i, path, err)
			}
			row[i] = parsed
		}
		result = append(result, row)
	}

	log.Debug().Msgf("Parsed %d rows from %s", len(result), path)
	return result, nil
}

// parseValue converts a string to T (int or float64).
func parseValue[T int | float64](s string, na map[string]struct{}) (T, error) {
	s = strings.TrimSpace(s)
	var zero T
	_, missing := na[s]
	switch any(zero).(type) {
	case int:
		if missing {
			return zero, fmt.Errorf("missing value %q in integer field", s)
		}
		v, err := strconv.Atoi(s)
		return any(v).(T), err
	case float64:
		if missing {
			return any(math.NaN()).(T), nil
		}
		v, err := strconv.ParseFloat(s, 64)
		return any(v).(T), err
	default:
		return zero, fmt.Errorf("unsupported type %T", zero)
	}
}
