package table

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrNoRows is returned by Normalize when the payload decodes cleanly but
// yields zero records. It is a terminal outcome for the run, not a crash.
var ErrNoRows = errors.New("no rows in payload")

// NormalizationError indicates a payload that is not tabular at all, e.g. a
// bare scalar or an array of scalars. Per-column problems never produce it.
type NormalizationError struct {
	Err error
}

func (e NormalizationError) Error() string {
	return fmt.Sprintf("payload is not tabular: %v", e.Err)
}

func (e NormalizationError) Unwrap() error {
	return e.Err
}

// ColumnType is the target type of a column coercion.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeInt
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt:
		return "int"
	default:
		return "text"
	}
}

// CoercionSpec maps column names to target types. Coercions are applied
// per-column and independently; a failure in one column never affects
// another.
type CoercionSpec map[string]ColumnType

// Table is a rectangular, ordered-column structure derived from an API
// payload. Columns is the first-seen column order; each row holds only the
// cells the source record actually had (missing cells stay absent).
type Table struct {
	Columns []string
	Rows    []map[string]any

	// Warnings records columns left unconverted by a failed coercion.
	// Missing records coercion columns absent from the payload.
	Warnings []string
	Missing  []string
}

// Normalize derives a Table from a decoded JSON payload and applies the
// column coercions. A coercion is all-or-nothing per column: if any cell in
// a column cannot be converted, the whole column keeps its original
// representation and a warning is recorded.
func Normalize(raw json.RawMessage, coercions CoercionSpec) (*Table, error) {
	table, err := decode(raw)
	if err != nil {
		return nil, err
	}

	if len(table.Rows) == 0 {
		return nil, ErrNoRows
	}

	table.coerce(coercions)

	return table, nil
}

// Values renders the table as a header row followed by data rows, with
// absent cells left blank. This is the layout uploaded to the worksheet.
func (t *Table) Values() [][]any {
	values := make([][]any, 0, len(t.Rows)+1)

	header := make([]any, len(t.Columns))
	for i, column := range t.Columns {
		header[i] = column
	}
	values = append(values, header)

	for _, row := range t.Rows {
		record := make([]any, len(t.Columns))
		for i, column := range t.Columns {
			if v, ok := row[column]; ok {
				record[i] = v
			} else {
				record[i] = ""
			}
		}
		values = append(values, record)
	}

	return values
}

func (t *Table) coerce(coercions CoercionSpec) {
	// ... deterministic order for logs and tests
	columns := make([]string, 0, len(coercions))
	for column := range coercions {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	index := map[string]bool{}
	for _, column := range t.Columns {
		index[column] = true
	}

	for _, column := range columns {
		if !index[column] {
			t.Missing = append(t.Missing, column)
			continue
		}

		target := coercions[column]

		// ... first pass: every present cell must convert
		converted := make([]any, len(t.Rows))
		failed := false
		for i, row := range t.Rows {
			cell, ok := row[column]
			if !ok {
				continue
			}

			v, err := coerceCell(cell, target)
			if err != nil {
				t.Warnings = append(t.Warnings, fmt.Sprintf("column %q not converted to %v: %v", column, target, err))
				failed = true
				break
			}
			converted[i] = v
		}

		if failed {
			continue
		}

		// ... second pass: commit
		for i, row := range t.Rows {
			if _, ok := row[column]; ok {
				row[column] = converted[i]
			}
		}
	}
}

func coerceCell(cell any, target ColumnType) (any, error) {
	switch target {
	case TypeInt:
		return coerceInt(cell)
	case TypeText:
		return coerceText(cell)
	default:
		return nil, fmt.Errorf("unknown column type %d", target)
	}
}

func coerceInt(cell any) (int64, error) {
	switch v := cell.(type) {
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int", cell)
	}
}

func coerceText(cell any) (string, error) {
	switch v := cell.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case nil:
		return "", fmt.Errorf("cannot convert null to text")
	default:
		return "", fmt.Errorf("cannot convert %T to text", cell)
	}
}

// decode parses the payload preserving first-seen column order, which a
// map[string]any round-trip would lose. An array of objects becomes one row
// per object; a single object with all-array values is treated as
// column-oriented; any other object is a single record.
func decode(raw json.RawMessage) (*Table, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	token, err := decoder.Token()
	if err != nil {
		return nil, NormalizationError{Err: err}
	}

	switch delim := token.(type) {
	case json.Delim:
		switch delim {
		case '[':
			return decodeRecords(decoder)
		case '{':
			return decodeObject(decoder)
		}
	}

	return nil, NormalizationError{Err: fmt.Errorf("expected a JSON array or object, got %v", token)}
}

func decodeRecords(decoder *json.Decoder) (*Table, error) {
	table := &Table{}
	seen := map[string]bool{}

	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return nil, NormalizationError{Err: err}
		}

		if delim, ok := token.(json.Delim); !ok || delim != '{' {
			return nil, NormalizationError{Err: fmt.Errorf("expected a record, got %v", token)}
		}

		keys, fields, err := decodeFields(decoder)
		if err != nil {
			return nil, err
		}

		for _, key := range keys {
			if !seen[key] {
				seen[key] = true
				table.Columns = append(table.Columns, key)
			}
		}

		table.Rows = append(table.Rows, fields)
	}

	// ... consume the closing ']'
	if _, err := decoder.Token(); err != nil {
		return nil, NormalizationError{Err: err}
	}

	return table, nil
}

func decodeObject(decoder *json.Decoder) (*Table, error) {
	keys, fields, err := decodeFields(decoder)
	if err != nil {
		return nil, err
	}

	if len(keys) == 0 {
		return &Table{}, nil
	}

	// ... column-oriented only when every value is an array
	columnar := true
	height := 0
	for _, key := range keys {
		cells, ok := fields[key].([]any)
		if !ok {
			columnar = false
			break
		}
		if len(cells) > height {
			height = len(cells)
		}
	}

	if !columnar {
		return &Table{
			Columns: keys,
			Rows:    []map[string]any{fields},
		}, nil
	}

	table := &Table{Columns: keys}
	for i := 0; i < height; i++ {
		row := map[string]any{}
		for _, key := range keys {
			cells := fields[key].([]any)
			if i < len(cells) {
				row[key] = cells[i]
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

func decodeFields(decoder *json.Decoder) ([]string, map[string]any, error) {
	keys := []string{}
	fields := map[string]any{}

	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return nil, nil, NormalizationError{Err: err}
		}

		key, ok := token.(string)
		if !ok {
			return nil, nil, NormalizationError{Err: fmt.Errorf("expected a field name, got %v", token)}
		}

		var value any
		if err := decoder.Decode(&value); err != nil {
			return nil, nil, NormalizationError{Err: err}
		}

		if _, dup := fields[key]; !dup {
			keys = append(keys, key)
		}
		fields[key] = value
	}

	// ... consume the closing '}'
	if _, err := decoder.Token(); err != nil {
		return nil, nil, NormalizationError{Err: err}
	}

	return keys, fields, nil
}
