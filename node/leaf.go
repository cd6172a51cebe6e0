package node

import (
	"btreedb/dberrors"
)

// Leaf header (after the 10-byte common header): num_cells(4) + row_size(4).
const (
	leafNumCellsOff = HeaderSize
	leafRowSizeOff  = leafNumCellsOff + 4
	leafHeaderSize  = leafRowSizeOff + 4 // 18
	leafKeySize     = 4
)

// LeafView is a borrowed handle over a leaf page: header fields plus a
// packed, strictly-increasing array of (key, value) cells.
type LeafView struct {
	common
	rowSize uint32
	rawCap  uint32
}

// LeafCapacity returns C_leaf for a given row size: the raw, even-rounded
// number of cells a leaf page can hold, independent of any configured load cap.
func LeafCapacity(rowSize uint32) uint32 {
	c := (PageSize - leafHeaderSize) / (leafKeySize + rowSize)
	if c%2 == 1 {
		c--
	}
	return c
}

// InitLeaf writes the type tag and clears the cell counter on a
// freshly allocated (zeroed) page, recording rowSize so the page can
// later be Attached without external context.
func InitLeaf(buf []byte, rowSize uint32) (*LeafView, error) {
	if rowSize == 0 {
		return nil, &dberrors.CorruptPageError{Reason: "leaf row_size must be > 0"}
	}
	buf[typeOff] = byte(KindLeaf)
	order.PutUint32(buf[leafNumCellsOff:], 0)
	order.PutUint32(buf[leafRowSizeOff:], rowSize)
	return &LeafView{common: common{buf}, rowSize: rowSize, rawCap: LeafCapacity(rowSize)}, nil
}

// AttachLeaf reads the type tag and row size back from an existing
// page and trusts the content found there.
func AttachLeaf(buf []byte) (*LeafView, error) {
	if TypeTag(buf) != KindLeaf {
		return nil, &dberrors.CorruptPageError{Reason: "not a leaf page"}
	}
	rowSize := order.Uint32(buf[leafRowSizeOff:])
	if rowSize == 0 {
		return nil, &dberrors.CorruptPageError{Reason: "leaf row_size reads back as 0"}
	}
	return &LeafView{common: common{buf}, rowSize: rowSize, rawCap: LeafCapacity(rowSize)}, nil
}

// NumCells returns the number of (key, value) cells currently stored.
func (l *LeafView) NumCells() uint32 { return order.Uint32(l.buf[leafNumCellsOff:]) }

func (l *LeafView) setNumCells(n uint32) { order.PutUint32(l.buf[leafNumCellsOff:], n) }

// RowSize returns the size in bytes of the value portion of each cell.
func (l *LeafView) RowSize() uint32 { return l.rowSize }

// RawCapacity returns C_leaf, the byte-derived ceiling independent of
// any configured load cap.
func (l *LeafView) RawCapacity() uint32 { return l.rawCap }

func (l *LeafView) cellSize() uint32 { return leafKeySize + l.rowSize }

// cellAt returns the raw cell slot at index i, valid for any
// i < rawCap (not just i < NumCells) so split logic can address
// slots it's about to populate.
func (l *LeafView) cellAt(i uint32) []byte {
	off := leafHeaderSize + i*l.cellSize()
	return l.buf[off : off+l.cellSize()]
}

// GetCell returns the raw cell slot at index i (key ∥ value), i < NumCells().
func (l *LeafView) GetCell(i uint32) []byte { return l.cellAt(i) }

// GetKey returns the key of cell i.
func (l *LeafView) GetKey(i uint32) uint32 { return order.Uint32(l.cellAt(i)[:leafKeySize]) }

// GetValue returns the value portion of cell i.
func (l *LeafView) GetValue(i uint32) []byte { return l.cellAt(i)[leafKeySize:] }

// IsFull reports whether NumCells has reached the given load cap.
func (l *LeafView) IsFull(loadCap uint32) bool { return l.NumCells() >= loadCap }

// SearchKeyPosition returns the largest index i with key(i) <= key, or
// -1 if key < key(0). Requires NumCells() >= 1.
func (l *LeafView) SearchKeyPosition(key uint32) int {
	return searchPosition(l.NumCells(), l.GetKey, key)
}

func (l *LeafView) writeCell(i, key uint32, value []byte) {
	cell := l.cellAt(i)
	order.PutUint32(cell[:leafKeySize], key)
	copy(cell[leafKeySize:], value)
}

// Insert adds (key, value) into the sorted leaf. Requires the leaf not
// be full (by whatever load cap the caller applies) and that key not
// already be present.
func (l *LeafView) Insert(key uint32, value []byte) error {
	n := l.NumCells()
	if n >= l.rawCap {
		return &dberrors.CorruptPageError{Reason: "Insert called on a leaf with no raw capacity left"}
	}
	idx := n
	for idx > 0 && l.GetKey(idx-1) > key {
		idx--
	}
	if idx > 0 && l.GetKey(idx-1) == key {
		return &dberrors.DuplicateKeyError{Key: key}
	}
	l.setNumCells(n + 1)
	for i := n; i > idx; i-- {
		copy(l.cellAt(i), l.cellAt(i-1))
	}
	l.writeCell(idx, key, value)
	return nil
}

// InsertAndSplit splits a full leaf to make room for (key, value).
// newBuf must be a freshly allocated, zeroed page. The left node
// (this one) keeps ceil((n+1)/2) cells, the right node gets
// floor((n+1)/2). Returns the pivot: the maximum key remaining in the
// left node, which the caller propagates upward.
func (l *LeafView) InsertAndSplit(key uint32, value []byte, newBuf []byte) (uint32, *LeafView, error) {
	n := l.NumCells()

	pos := n
	for pos > 0 && l.GetKey(pos-1) > key {
		pos--
	}
	if pos > 0 && l.GetKey(pos-1) == key {
		return 0, nil, &dberrors.DuplicateKeyError{Key: key}
	}

	type cell struct {
		key uint32
		val []byte
	}
	merged := make([]cell, 0, n+1)
	for i := uint32(0); i < pos; i++ {
		merged = append(merged, cell{l.GetKey(i), append([]byte(nil), l.GetValue(i)...)})
	}
	merged = append(merged, cell{key, append([]byte(nil), value...)})
	for i := pos; i < n; i++ {
		merged = append(merged, cell{l.GetKey(i), append([]byte(nil), l.GetValue(i)...)})
	}

	leftCount := uint32((len(merged) + 1) / 2) // ceil((n+1)/2)

	right, err := InitLeaf(newBuf, l.rowSize)
	if err != nil {
		return 0, nil, err
	}

	for i, c := range merged[:leftCount] {
		l.writeCell(uint32(i), c.key, c.val)
	}
	l.setNumCells(leftCount)

	rightCells := merged[leftCount:]
	for i, c := range rightCells {
		right.writeCell(uint32(i), c.key, c.val)
	}
	right.setNumCells(uint32(len(rightCells)))

	pivot := l.GetKey(leftCount - 1)
	return pivot, right, nil
}
