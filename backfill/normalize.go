package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/root-talis/fuelmig/document"
	"github.com/root-talis/fuelmig/schema"
)

// Converter turns a document field value into a column value.
type Converter func(value interface{}) (interface{}, error)

// Mapping declares how the fields of a document element become columns.
// Fields that are neither renamed nor known go to the overflow.
type Mapping struct {
	// Rename maps a document field to a differently named column.
	Rename map[string]string
	// Known lists fields stored verbatim in the column of the same name.
	Known []string
	// Convert is keyed by column name.
	Convert map[string]Converter
}

// Record is one normalized element: typed columns plus the fields the
// mapping does not know about.
type Record struct {
	Columns  map[string]interface{}
	Overflow map[string]interface{}
}

// NormalizeDocument maps every element of an array document to a record.
func NormalizeDocument(mapping Mapping, doc []interface{}) ([]Record, error) {
	known := make(map[string]struct{}, len(mapping.Known))
	for _, field := range mapping.Known {
		known[field] = struct{}{}
	}

	records := make([]Record, 0, len(doc))
	for i, item := range doc {
		element, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("element %d: %w: expected an object, got %T", i, document.ErrUnexpectedShape, item)
		}

		record := Record{
			Columns:  make(map[string]interface{}, len(element)),
			Overflow: make(map[string]interface{}),
		}
		source := make(map[string]string, len(element))

		fields := make([]string, 0, len(element))
		for field := range element {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		for _, field := range fields {
			column, renamed := mapping.Rename[field]
			if !renamed {
				if _, ok := known[field]; !ok {
					record.Overflow[field] = document.Clone(element[field])
					continue
				}
				column = field
			}

			if other, dup := source[column]; dup {
				return nil, fmt.Errorf("element %d: fields %q and %q both map to column %s", i, other, field, column)
			}
			source[column] = field

			value := document.Clone(element[field])
			if convert, ok := mapping.Convert[column]; ok {
				converted, err := convert(value)
				if err != nil {
					return nil, fmt.Errorf("element %d: field %q: %w", i, field, err)
				}
				value = converted
			}
			record.Columns[column] = value
		}

		records = append(records, record)
	}

	return records, nil
}

// ---

// ParentFunc creates the parent row of the records produced from one source
// row and returns the columns to stamp onto each of them.
type ParentFunc func(ctx context.Context, store schema.Store, sourceKey interface{}) (schema.Row, error)

// Normalize explodes an array document column into rows of another table.
type Normalize struct {
	Source    string
	SourceKey string
	Document  string
	Where     schema.Row

	Target   string
	Fields   Mapping
	Overflow string
	Parent   ParentFunc

	// DropSourceColumn drops Document once every row is normalized. It cannot
	// be combined with Where.
	DropSourceColumn bool
}

func (n Normalize) String() string {
	return fmt.Sprintf("normalize %s.%s into %s", n.Source, n.Document, n.Target)
}

type sourceRecords struct {
	key     interface{}
	records []Record
}

// Run returns the number of rows inserted into the target table.
func (n Normalize) Run(ctx context.Context, store schema.Store) (int, error) {
	if n.DropSourceColumn && len(n.Where) > 0 {
		return 0, fmt.Errorf("%w: %s.%s", ErrPartialDrop, n.Source, n.Document)
	}

	rows, err := schema.ScanAll(ctx, store, schema.Query{
		Table:   n.Source,
		Columns: []string{n.SourceKey, n.Document},
		Where:   n.Where,
		NotNull: []string{n.Document},
		OrderBy: []string{n.SourceKey},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", n.Source, err)
	}

	var pending []sourceRecords
	for _, row := range rows {
		key := row[n.SourceKey]

		doc, err := document.FromColumn(row[n.Document])
		if err != nil {
			return 0, &RowError{Table: n.Source, Key: schema.KeyString(key), Err: err}
		}
		elements, err := document.Array(doc)
		if err != nil {
			return 0, &RowError{Table: n.Source, Key: schema.KeyString(key), Err: err}
		}
		if len(elements) == 0 {
			continue
		}

		records, err := NormalizeDocument(n.Fields, elements)
		if err != nil {
			return 0, &RowError{Table: n.Source, Key: schema.KeyString(key), Err: err}
		}
		if err := n.checkOverflow(records); err != nil {
			return 0, &RowError{Table: n.Source, Key: schema.KeyString(key), Err: err}
		}
		pending = append(pending, sourceRecords{key: key, records: records})
	}

	produced := 0
	for _, src := range pending {
		var stamp schema.Row
		if n.Parent != nil {
			if stamp, err = n.Parent(ctx, store, src.key); err != nil {
				return 0, &RowError{Table: n.Source, Key: schema.KeyString(src.key), Err: err}
			}
		}

		for _, record := range src.records {
			row, err := n.encode(record, stamp)
			if err != nil {
				return 0, &RowError{Table: n.Source, Key: schema.KeyString(src.key), Err: err}
			}
			if _, err := store.Insert(ctx, n.Target, row); err != nil {
				return 0, &RowError{Table: n.Source, Key: schema.KeyString(src.key), Err: err}
			}
			produced++
		}
	}

	if n.DropSourceColumn {
		if err := (schema.DropColumn{Table: n.Source, Column: n.Document}).Apply(ctx, store); err != nil {
			return 0, err
		}
	}

	return produced, nil
}

// checkOverflow refuses to lose unmapped fields when there is no overflow
// column to keep them in.
func (n Normalize) checkOverflow(records []Record) error {
	if n.Overflow != "" {
		return nil
	}
	for i, record := range records {
		if len(record.Overflow) == 0 {
			continue
		}
		fields := make([]string, 0, len(record.Overflow))
		for field := range record.Overflow {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		return fmt.Errorf("element %d: %w: %v", i, ErrUnmappedFields, fields)
	}
	return nil
}

func (n Normalize) encode(record Record, stamp schema.Row) (schema.Row, error) {
	row := make(schema.Row, len(record.Columns)+len(stamp)+1)
	for column, value := range record.Columns {
		encoded, err := columnValue(value)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", column, err)
		}
		row[column] = encoded
	}
	for column, value := range stamp {
		row[column] = value
	}

	if n.Overflow != "" {
		overflow, err := document.Serialize(record.Overflow)
		if err != nil {
			return nil, err
		}
		row[n.Overflow] = overflow
	}
	return row, nil
}

// columnValue stores nested values as document text and scalars as they are.
func columnValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case map[string]interface{}, []interface{}:
		return document.Serialize(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		return v.Float64()
	default:
		return value, nil
	}
}
