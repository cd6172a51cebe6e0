// Package node interprets a 4KiB page buffer as either an internal or
// a leaf B+Tree node. It is a pure, in-memory codec: every view here
// borrows a []byte owned by the pager and never allocates a page of
// its own. Construction comes in two forms, matching the pager's page
// lifecycle: Init* for a freshly allocated (zeroed) page, Attach* for
// an existing one.
package node

import (
	"encoding/binary"
	"math"
)

// Kind tags which of the two node shapes a page holds.
type Kind uint8

const (
	KindInternal Kind = 0
	KindLeaf     Kind = 1
)

// NoParent is the sentinel parent page id carried only by the root.
const NoParent = uint64(math.MaxUint64)

// PageSize mirrors pager.PageSize; duplicated here (rather than
// imported) so this package has no dependency on the pager, matching
// the "node codec is pure over a borrowed buffer" design.
const PageSize = 4096

// Common node header: type(1) + isRoot(1) + parent(8) = 10 bytes.
const (
	typeOff    = 0
	isRootOff  = 1
	parentOff  = 2
	HeaderSize = 10
)

var order = binary.LittleEndian

// TypeTag reads the node-type byte directly out of a raw page buffer,
// without attaching a view. Used by callers (the btree package) that
// need to dispatch on kind before committing to Attach.
func TypeTag(buf []byte) Kind { return Kind(buf[typeOff]) }

// RootFlag reads the is-root bit directly out of a raw page buffer.
func RootFlag(buf []byte) bool { return buf[isRootOff] != 0 }

// SetRootFlag writes the is-root bit directly into a raw page buffer.
func SetRootFlag(buf []byte, v bool) {
	if v {
		buf[isRootOff] = 1
	} else {
		buf[isRootOff] = 0
	}
}

// ParentField reads the parent page id directly out of a raw page
// buffer, regardless of node kind. Used by the btree package's split
// propagation to reparent children without attaching a full view.
func ParentField(buf []byte) uint64 { return order.Uint64(buf[parentOff : parentOff+8]) }

// SetParentField writes the parent page id directly into a raw page buffer.
func SetParentField(buf []byte, id uint64) { order.PutUint64(buf[parentOff:parentOff+8], id) }

// common embeds the header accessors shared by LeafView and InternalView.
type common struct {
	buf []byte
}

func (c common) NodeType() Kind      { return TypeTag(c.buf) }
func (c common) IsRoot() bool        { return RootFlag(c.buf) }
func (c common) SetRoot(v bool)      { SetRootFlag(c.buf, v) }
func (c common) Parent() uint64      { return ParentField(c.buf) }
func (c common) SetParent(id uint64) { SetParentField(c.buf, id) }

// searchPosition performs the shared binary search described in
// spec §4.2: the largest index i such that key(i) <= key, or -1 if
// key < key(0). Requires numKeys >= 1; callers must special-case the
// empty-node lookup before calling this (see btree.Find).
func searchPosition(numKeys uint32, key func(uint32) uint32, target uint32) int {
	if numKeys == 0 {
		panic("node: searchPosition called on an empty node")
	}
	lo, hi := 0, int(numKeys)-1
	result := -1
	for lo <= hi {
		mid := lo + (hi-lo)/2
		if key(uint32(mid)) <= target {
			result = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return result
}
