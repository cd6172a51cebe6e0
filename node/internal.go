package node

import (
	"btreedb/dberrors"
)

// Internal header (after the 10-byte common header): num_keys(4).
const (
	internalNumKeysOff = HeaderSize
	internalHeaderSize = internalNumKeysOff + 4 // 14
	childSize          = 8
	internalKeySize    = 4
	cellStride         = childSize + internalKeySize // 12
)

// InternalView is a borrowed handle over an internal page: a header
// plus the alternating child/key body c0,k0,c1,k1,...,c(n-1),k(n-1),cn.
type InternalView struct {
	common
	rawCap uint32
}

// InternalCapacity returns C_inner: the raw, even-rounded number of
// keys an internal page can hold.
func InternalCapacity() uint32 {
	payload := uint32(PageSize) - internalHeaderSize
	c := (payload - childSize) / cellStride
	if c%2 == 1 {
		c--
	}
	return c
}

// InitInternal writes the type tag and clears the key counter on a
// freshly allocated (zeroed) page.
func InitInternal(buf []byte) *InternalView {
	buf[typeOff] = byte(KindInternal)
	order.PutUint32(buf[internalNumKeysOff:], 0)
	return &InternalView{common: common{buf}, rawCap: InternalCapacity()}
}

// AttachInternal reads the type tag back from an existing page and
// trusts the content found there.
func AttachInternal(buf []byte) (*InternalView, error) {
	if TypeTag(buf) != KindInternal {
		return nil, &dberrors.CorruptPageError{Reason: "not an internal page"}
	}
	return &InternalView{common: common{buf}, rawCap: InternalCapacity()}, nil
}

// NumKeys returns the number of keys currently stored.
func (n *InternalView) NumKeys() uint32 { return order.Uint32(n.buf[internalNumKeysOff:]) }

func (n *InternalView) setNumKeys(k uint32) { order.PutUint32(n.buf[internalNumKeysOff:], k) }

// RawCapacity returns C_inner, the byte-derived ceiling independent of
// any configured load cap.
func (n *InternalView) RawCapacity() uint32 { return n.rawCap }

func (n *InternalView) childOff(i uint32) uint32 { return internalHeaderSize + i*cellStride }
func (n *InternalView) keyOff(i uint32) uint32   { return n.childOff(i) + childSize }

// GetChild returns the child page id at index i, i <= NumKeys().
func (n *InternalView) GetChild(i uint32) uint64 {
	off := n.childOff(i)
	return order.Uint64(n.buf[off : off+childSize])
}

func (n *InternalView) setChild(i uint32, v uint64) {
	off := n.childOff(i)
	order.PutUint64(n.buf[off:off+childSize], v)
}

// GetKey returns the key at index i, i < NumKeys().
func (n *InternalView) GetKey(i uint32) uint32 {
	off := n.keyOff(i)
	return order.Uint32(n.buf[off : off+internalKeySize])
}

func (n *InternalView) setKey(i uint32, v uint32) {
	off := n.keyOff(i)
	order.PutUint32(n.buf[off:off+internalKeySize], v)
}

// IsFull reports whether NumKeys has reached the given load cap.
func (n *InternalView) IsFull(loadCap uint32) bool { return n.NumKeys() >= loadCap }

// SearchKeyPosition returns the largest index i with key(i) <= key, or
// -1 if key < key(0). Requires NumKeys() >= 1.
func (n *InternalView) SearchKeyPosition(key uint32) int {
	return searchPosition(n.NumKeys(), n.GetKey, key)
}

// Insert splices (key, leftChild, rightChild) into a non-full node.
// left is expected to already be the child pointer at the insertion
// slot (the split that produced this call already owned the left
// side); only right is newly introduced.
func (n *InternalView) Insert(key uint32, left, right uint64) error {
	cnt := n.NumKeys()
	if cnt == 0 {
		n.setChild(0, left)
		n.setKey(0, key)
		n.setChild(1, right)
		n.setNumKeys(1)
		return nil
	}

	i := int(cnt) - 1
	for i >= 0 && n.GetKey(uint32(i)) > key {
		i--
	}
	if i >= 0 && n.GetKey(uint32(i)) == key {
		return &dberrors.DuplicateKeyError{Key: key}
	}
	pos := uint32(i + 1)

	for j := cnt; j > pos; j-- {
		n.setKey(j, n.GetKey(j-1))
		n.setChild(j+1, n.GetChild(j))
	}
	n.setKey(pos, key)
	n.setChild(pos+1, right)
	n.setNumKeys(cnt + 1)
	return nil
}

// InsertAndSplit splits a full internal node to make room for
// (key, left, right). newBuf must be a freshly allocated, zeroed page.
// The virtual n+1-key sequence is split so the left node (this one)
// keeps n/2 keys and the right node gets n/2 keys; the middle key is
// the pivot and is removed from both sides — its right child pointer
// becomes child 0 of the right node. Returns the pivot.
func (n *InternalView) InsertAndSplit(key uint32, left, right uint64, newBuf []byte) (uint32, *InternalView, error) {
	cnt := n.NumKeys()

	oldKeys := make([]uint32, cnt)
	for i := uint32(0); i < cnt; i++ {
		oldKeys[i] = n.GetKey(i)
	}
	oldChildren := make([]uint64, cnt+1)
	for i := uint32(0); i <= cnt; i++ {
		oldChildren[i] = n.GetChild(i)
	}

	pos := int(cnt)
	for pos > 0 && oldKeys[pos-1] > key {
		pos--
	}
	if pos > 0 && oldKeys[pos-1] == key {
		return 0, nil, &dberrors.DuplicateKeyError{Key: key}
	}

	newKeys := make([]uint32, 0, cnt+1)
	newKeys = append(newKeys, oldKeys[:pos]...)
	newKeys = append(newKeys, key)
	newKeys = append(newKeys, oldKeys[pos:]...)

	newChildren := make([]uint64, 0, cnt+2)
	newChildren = append(newChildren, oldChildren[:pos+1]...)
	newChildren = append(newChildren, right)
	newChildren = append(newChildren, oldChildren[pos+1:]...)

	pivotIdx := int(cnt) / 2
	pivot := newKeys[pivotIdx]

	leftKeys := newKeys[:pivotIdx]
	leftChildren := newChildren[:pivotIdx+1]
	rightKeys := newKeys[pivotIdx+1:]
	rightChildren := newChildren[pivotIdx+1:]

	rightView := InitInternal(newBuf)
	for i, c := range rightChildren {
		rightView.setChild(uint32(i), c)
	}
	for i, k := range rightKeys {
		rightView.setKey(uint32(i), k)
	}
	rightView.setNumKeys(uint32(len(rightKeys)))

	for i, c := range leftChildren {
		n.setChild(uint32(i), c)
	}
	for i, k := range leftKeys {
		n.setKey(uint32(i), k)
	}
	n.setNumKeys(uint32(len(leftKeys)))

	return pivot, rightView, nil
}
