// Package row is a demo fixed-width row codec used by the REPL
// command layer. It is a collaborator, not part of the storage
// engine: the engine and btree packages only ever see a RowSize and
// an opaque []byte; schema knowledge lives here.
package row

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ColumnType is the kind of value a Column holds.
type ColumnType int

const (
	ColumnTypeInt ColumnType = iota
	ColumnTypeText
)

// Column describes one field of a Schema.
type Column struct {
	Name      string
	Type      ColumnType
	MaxLength uint32 // required, and only meaningful, for ColumnTypeText
}

// Schema is an ordered list of columns. The first column is always
// the uint32 primary key used as the B+Tree key.
type Schema []Column

// colLayout is a Column plus its resolved byte offset and width within
// a serialized row.
type colLayout struct {
	Column
	offset   uint32
	byteSize uint32
}

// Layout is a Schema with offsets resolved, ready to serialize and
// deserialize fixed-width rows.
type Layout struct {
	schema  Schema
	columns []colLayout
	rowSize uint32
}

// BuildLayout computes byte offsets for schema and validates it.
// The first column must be an int column (the primary key).
func BuildLayout(schema Schema) (*Layout, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("row: schema must have at least one column")
	}
	if schema[0].Type != ColumnTypeInt {
		return nil, fmt.Errorf("row: first column %q must be an int primary key", schema[0].Name)
	}

	var offset uint32
	columns := make([]colLayout, 0, len(schema))
	for _, col := range schema {
		switch col.Type {
		case ColumnTypeInt:
			columns = append(columns, colLayout{Column: col, offset: offset, byteSize: 4})
			offset += 4
		case ColumnTypeText:
			if col.MaxLength == 0 {
				return nil, fmt.Errorf("row: text column %q must have MaxLength > 0", col.Name)
			}
			columns = append(columns, colLayout{Column: col, offset: offset, byteSize: col.MaxLength})
			offset += col.MaxLength
		default:
			return nil, fmt.Errorf("row: unsupported column type for %q", col.Name)
		}
	}

	return &Layout{schema: schema, columns: columns, rowSize: offset}, nil
}

// RowSize is the fixed serialized width of a row under this layout.
func (l *Layout) RowSize() uint32 { return l.rowSize }

// Row is one record, column values in schema order.
type Row []interface{}

// Key returns the primary key: the first column, which BuildLayout
// guarantees is an int column.
func (r Row) Key() (uint32, error) {
	v, ok := r[0].(uint32)
	if !ok {
		return 0, fmt.Errorf("row: primary key column holds %T, want uint32", r[0])
	}
	return v, nil
}

// Serialize packs row into dst, which must be exactly RowSize() bytes.
func (l *Layout) Serialize(r Row, dst []byte) error {
	if uint32(len(dst)) != l.rowSize {
		return fmt.Errorf("row: dst is %d bytes, want %d", len(dst), l.rowSize)
	}
	if len(r) != len(l.columns) {
		return fmt.Errorf("row: row has %d columns, schema has %d", len(r), len(l.columns))
	}

	for i := range dst {
		dst[i] = 0
	}

	for i, col := range l.columns {
		base := col.offset
		switch col.Type {
		case ColumnTypeInt:
			val, ok := r[i].(uint32)
			if !ok {
				return fmt.Errorf("row: column %q expects uint32, got %T", col.Name, r[i])
			}
			binary.LittleEndian.PutUint32(dst[base:base+4], val)

		case ColumnTypeText:
			s, ok := r[i].(string)
			if !ok {
				return fmt.Errorf("row: column %q expects string, got %T", col.Name, r[i])
			}
			b := []byte(s)
			if uint32(len(b)) > col.MaxLength {
				return fmt.Errorf("row: column %q value %d bytes exceeds max %d", col.Name, len(b), col.MaxLength)
			}
			copy(dst[base:base+uint32(len(b))], b)
		}
	}
	return nil
}

// Deserialize unpacks a row previously written by Serialize.
func (l *Layout) Deserialize(src []byte) (Row, error) {
	if uint32(len(src)) != l.rowSize {
		return nil, fmt.Errorf("row: src is %d bytes, want %d", len(src), l.rowSize)
	}

	r := make(Row, len(l.columns))
	for i, col := range l.columns {
		base := col.offset
		switch col.Type {
		case ColumnTypeInt:
			r[i] = binary.LittleEndian.Uint32(src[base : base+4])
		case ColumnTypeText:
			raw := src[base : base+col.byteSize]
			r[i] = strings.TrimRight(string(raw), "\x00")
		}
	}
	return r, nil
}
