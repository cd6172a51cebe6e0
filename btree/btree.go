// Package btree implements the B+Tree algorithm itself: find, insert
// with bottom-up split propagation and root growth, an ordered range
// scan, and structural validation. It coordinates the pager (which
// owns page storage) and the node package (which interprets a page
// buffer), but holds no tree structure of its own beyond the pager's
// root page id — every operation re-fetches nodes through the pager,
// so mutations made through one view are immediately visible to the
// next (see spec's "view aliasing" design note).
package btree

import (
	"fmt"
	"log/slog"

	"btreedb/dberrors"
	"btreedb/node"
	"btreedb/pager"
)

// InsertResult reports the outcome of Insert.
type InsertResult int

const (
	InsertOK InsertResult = iota
	InsertDuplicateKey
)

// KeyLocation is the result of Find: the leaf page and slot a key
// occupies (or would occupy, if Exists is false).
type KeyLocation struct {
	PageID uint64
	Slot   uint32
	Exists bool
}

// Cell is one (key, value) pair returned from Select.
type Cell struct {
	Key   uint32
	Value []byte
}

// BTree is the tree algorithm over a pager. Open it once per pager.
type BTree struct {
	pager     *pager.Pager
	rowSize   uint32
	leafLoad  uint32
	innerLoad uint32
	log       *slog.Logger
}

// Open initializes or attaches a B+Tree rooted in p.
//
// In pager.Create mode, page 0 is allocated and initialized as an
// empty leaf root. In pager.Open mode, the root page id is read back
// from the pager's metadata and attached (its kind is discovered from
// the page's own type tag, not assumed).
//
// leafLoad and innerLoad are the configured per-node key-count caps;
// each is clamped to its raw, byte-derived capacity so callers can't
// configure a cap the page format can't physically hold.
func Open(p *pager.Pager, mode pager.Mode, rowSize, leafLoad, innerLoad uint32, log *slog.Logger) (*BTree, error) {
	if log == nil {
		log = slog.Default()
	}
	t := &BTree{
		pager:     p,
		rowSize:   rowSize,
		leafLoad:  clampEven(leafLoad, node.LeafCapacity(rowSize)),
		innerLoad: clampEven(innerLoad, node.InternalCapacity()),
		log:       log,
	}

	if mode == pager.Create {
		id, page, err := p.AllocatePage()
		if err != nil {
			return nil, err
		}
		leaf, err := node.InitLeaf(page.Data[:], rowSize)
		if err != nil {
			return nil, err
		}
		leaf.SetRoot(true)
		leaf.SetParent(node.NoParent)
		p.SetRootPageID(id)
		t.log.Debug("btree: created empty root", "pageID", id)
		return t, nil
	}

	rootID := p.RootPageID()
	page, err := p.GetPage(rootID)
	if err != nil {
		return nil, err
	}
	switch node.TypeTag(page.Data[:]) {
	case node.KindLeaf:
		if _, err := node.AttachLeaf(page.Data[:]); err != nil {
			return nil, err
		}
	case node.KindInternal:
		if _, err := node.AttachInternal(page.Data[:]); err != nil {
			return nil, err
		}
	default:
		return nil, &dberrors.CorruptPageError{PageID: rootID, Reason: "unknown root node type tag"}
	}
	t.log.Debug("btree: attached existing root", "pageID", rootID)
	return t, nil
}

func clampEven(configured, raw uint32) uint32 {
	cap := configured
	if cap == 0 || cap > raw {
		cap = raw
	}
	if cap%2 == 1 {
		cap--
	}
	return cap
}

// RowSize returns the configured row size in bytes.
func (t *BTree) RowSize() uint32 { return t.rowSize }

// LeafLoad and InnerLoad expose the effective (clamped) per-node caps,
// mostly useful for tests that want to force small fanouts.
func (t *BTree) LeafLoad() uint32  { return t.leafLoad }
func (t *BTree) InnerLoad() uint32 { return t.innerLoad }

// Find descends from the root and returns the leaf location a key
// occupies, or would occupy if absent.
func (t *BTree) Find(key uint32) (KeyLocation, error) {
	curID := t.pager.RootPageID()
	for {
		page, err := t.pager.GetPage(curID)
		if err != nil {
			return KeyLocation{}, err
		}
		if node.TypeTag(page.Data[:]) == node.KindLeaf {
			leaf, err := node.AttachLeaf(page.Data[:])
			if err != nil {
				return KeyLocation{}, err
			}
			return findInLeaf(curID, leaf, key), nil
		}
		in, err := node.AttachInternal(page.Data[:])
		if err != nil {
			return KeyLocation{}, err
		}
		p := in.SearchKeyPosition(key)
		if p >= 0 && in.GetKey(uint32(p)) == key {
			curID = in.GetChild(uint32(p))
		} else {
			curID = in.GetChild(uint32(p + 1))
		}
	}
}

func findInLeaf(pageID uint64, leaf *node.LeafView, key uint32) KeyLocation {
	if leaf.NumCells() == 0 {
		return KeyLocation{PageID: pageID, Slot: 0, Exists: false}
	}
	p := leaf.SearchKeyPosition(key)
	if p >= 0 && leaf.GetKey(uint32(p)) == key {
		return KeyLocation{PageID: pageID, Slot: uint32(p), Exists: true}
	}
	return KeyLocation{PageID: pageID, Slot: uint32(p + 1), Exists: false}
}

// Insert adds (key, row) to the tree. row must be exactly RowSize()
// bytes. Returns InsertDuplicateKey (with no mutation performed) if
// key is already present.
func (t *BTree) Insert(key uint32, row []byte) (InsertResult, error) {
	if uint32(len(row)) != t.rowSize {
		return InsertOK, fmt.Errorf("btree: row is %d bytes, want %d", len(row), t.rowSize)
	}

	loc, err := t.Find(key)
	if err != nil {
		return InsertOK, err
	}
	if loc.Exists {
		return InsertDuplicateKey, nil
	}

	page, err := t.pager.GetPage(loc.PageID)
	if err != nil {
		return InsertOK, err
	}
	leaf, err := node.AttachLeaf(page.Data[:])
	if err != nil {
		return InsertOK, err
	}

	if !leaf.IsFull(t.leafLoad) {
		if err := leaf.Insert(key, row); err != nil {
			return InsertOK, err
		}
		return InsertOK, nil
	}

	rightID, rightPage, err := t.pager.AllocatePage()
	if err != nil {
		return InsertOK, err
	}
	pivot, _, err := leaf.InsertAndSplit(key, row, rightPage.Data[:])
	if err != nil {
		return InsertOK, err
	}

	left := loc.PageID
	right := rightID
	parent := leaf.Parent()

	// Re-fetch the right page's parent field directly: InsertAndSplit
	// gave us a view over rightPage.Data, but we address pages by id
	// from here on, not by view, so set it through the raw helper.
	node.SetParentField(rightPage.Data[:], parent)

	t.log.Debug("btree: leaf split", "left", left, "right", right, "pivot", pivot)

	for parent != node.NoParent {
		parentPage, err := t.pager.GetPage(parent)
		if err != nil {
			return InsertOK, err
		}
		parentNode, err := node.AttachInternal(parentPage.Data[:])
		if err != nil {
			return InsertOK, err
		}

		if !parentNode.IsFull(t.innerLoad) {
			if err := parentNode.Insert(pivot, left, right); err != nil {
				return InsertOK, err
			}
			if err := t.setChildParent(right, parent); err != nil {
				return InsertOK, err
			}
			return InsertOK, nil
		}

		newRightID, newRightPage, err := t.pager.AllocatePage()
		if err != nil {
			return InsertOK, err
		}
		newPivot, newRight, err := parentNode.InsertAndSplit(pivot, left, right, newRightPage.Data[:])
		if err != nil {
			return InsertOK, err
		}
		// The new right node starts out under the same parent as the
		// node it was split from; if the next split up moves it, that
		// split's reparent loop overwrites this.
		node.SetParentField(newRightPage.Data[:], parentNode.Parent())

		// Every child that landed in the new right node needs its
		// on-page parent pointer updated, whether it's `left`/`right`
		// from this insert or one of parentNode's pre-existing
		// children that the split relocated.
		for i := uint32(0); i <= newRight.NumKeys(); i++ {
			if err := t.setChildParent(newRight.GetChild(i), newRightID); err != nil {
				return InsertOK, err
			}
		}

		t.log.Debug("btree: internal split", "left", parent, "right", newRightID, "pivot", newPivot)

		pivot = newPivot
		left = parent
		right = newRightID
		parent = parentNode.Parent()
	}

	return InsertOK, t.growRoot(pivot, left, right)
}

func (t *BTree) setChildParent(childID, parentID uint64) error {
	page, err := t.pager.GetPage(childID)
	if err != nil {
		return err
	}
	node.SetParentField(page.Data[:], parentID)
	return nil
}

// growRoot allocates a new internal root over (left, pivot, right),
// demotes the previous root, and repoints the pager's metadata.
func (t *BTree) growRoot(pivot uint32, left, right uint64) error {
	prevRootID := t.pager.RootPageID()

	newRootID, newRootPage, err := t.pager.AllocatePage()
	if err != nil {
		return err
	}
	newRoot := node.InitInternal(newRootPage.Data[:])
	if err := newRoot.Insert(pivot, left, right); err != nil {
		return err
	}
	if err := t.setChildParent(left, newRootID); err != nil {
		return err
	}
	if err := t.setChildParent(right, newRootID); err != nil {
		return err
	}

	prevRootPage, err := t.pager.GetPage(prevRootID)
	if err != nil {
		return err
	}
	node.SetRootFlag(prevRootPage.Data[:], false)

	t.pager.SetRootPageID(newRootID)
	node.SetRootFlag(newRootPage.Data[:], true)
	node.SetParentField(newRootPage.Data[:], node.NoParent)

	t.log.Debug("btree: root grew", "newRootID", newRootID, "pivot", pivot)
	return nil
}

// Select returns every cell with a key in [min, max], in ascending key
// order, via a bounded post-order traversal from the root.
func (t *BTree) Select(min, max uint32) ([]Cell, error) {
	var out []Cell
	if err := t.selectRec(t.pager.RootPageID(), min, max, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *BTree) selectRec(pageID uint64, min, max uint32, out *[]Cell) error {
	page, err := t.pager.GetPage(pageID)
	if err != nil {
		return err
	}
	if node.TypeTag(page.Data[:]) == node.KindLeaf {
		leaf, err := node.AttachLeaf(page.Data[:])
		if err != nil {
			return err
		}
		n := leaf.NumCells()
		for i := uint32(0); i < n; i++ {
			k := leaf.GetKey(i)
			if k < min {
				continue
			}
			if k > max {
				break
			}
			*out = append(*out, Cell{Key: k, Value: append([]byte(nil), leaf.GetValue(i)...)})
		}
		return nil
	}

	in, err := node.AttachInternal(page.Data[:])
	if err != nil {
		return err
	}
	nk := in.NumKeys()

	start := uint32(0)
	for start < nk && in.GetKey(start) < min {
		start++
	}
	end := int(nk) - 1
	for end >= 0 && in.GetKey(uint32(end)) >= max {
		end--
	}

	for c := start; c <= uint32(end+1); c++ {
		if err := t.selectRec(in.GetChild(c), min, max, out); err != nil {
			return err
		}
	}
	return nil
}

// CheckValid recursively walks the tree from the root and verifies the
// structural invariants the B+Tree must maintain at all times: exactly
// one is-root node (the root page itself), every non-root node's
// on-page parent pointer matches its actual parent, keys within a node
// are strictly increasing, every non-root node meets the load floor
// (at least half its configured cap), and every key is sandwiched
// between the bounds its ancestors' pivots imply.
func (t *BTree) CheckValid() error {
	return t.checkNode(t.pager.RootPageID(), node.NoParent, nil, nil)
}

// checkNode validates the subtree rooted at pageID. lower, if non-nil,
// is an exclusive lower bound (every key must be strictly greater);
// upper, if non-nil, is an inclusive upper bound (every key must be
// less than or equal), matching the pivot semantics used by Find:
// child i holds keys <= key(i), child i+1 holds keys > key(i).
func (t *BTree) checkNode(pageID, expectedParent uint64, lower, upper *uint32) error {
	page, err := t.pager.GetPage(pageID)
	if err != nil {
		return err
	}

	isRoot := node.RootFlag(page.Data[:])
	wantRoot := expectedParent == node.NoParent
	if isRoot != wantRoot {
		return &dberrors.CorruptPageError{PageID: pageID, Reason: "is-root flag inconsistent with parent chain"}
	}
	if parent := node.ParentField(page.Data[:]); parent != expectedParent {
		return &dberrors.CorruptPageError{PageID: pageID, Reason: fmt.Sprintf("parent pointer %d does not match expected %d", parent, expectedParent)}
	}

	switch node.TypeTag(page.Data[:]) {
	case node.KindLeaf:
		leaf, err := node.AttachLeaf(page.Data[:])
		if err != nil {
			return err
		}
		n := leaf.NumCells()
		if !isRoot && n < t.leafLoad/2 {
			return &dberrors.CorruptPageError{PageID: pageID, Reason: fmt.Sprintf("leaf below load floor: %d cells, floor %d", n, t.leafLoad/2)}
		}
		var prev uint32
		for i := uint32(0); i < n; i++ {
			k := leaf.GetKey(i)
			if i > 0 && k <= prev {
				return &dberrors.CorruptPageError{PageID: pageID, Reason: "leaf keys not strictly increasing"}
			}
			if lower != nil && k <= *lower {
				return &dberrors.CorruptPageError{PageID: pageID, Reason: "leaf key below expected lower bound"}
			}
			if upper != nil && k > *upper {
				return &dberrors.CorruptPageError{PageID: pageID, Reason: "leaf key above expected upper bound"}
			}
			prev = k
		}
		return nil

	case node.KindInternal:
		in, err := node.AttachInternal(page.Data[:])
		if err != nil {
			return err
		}
		n := in.NumKeys()
		if n == 0 {
			return &dberrors.CorruptPageError{PageID: pageID, Reason: "internal node has no keys"}
		}
		if !isRoot && n < t.innerLoad/2 {
			return &dberrors.CorruptPageError{PageID: pageID, Reason: fmt.Sprintf("internal node below load floor: %d keys, floor %d", n, t.innerLoad/2)}
		}

		var prevKey uint32
		for i := uint32(0); i < n; i++ {
			k := in.GetKey(i)
			if i > 0 && k <= prevKey {
				return &dberrors.CorruptPageError{PageID: pageID, Reason: "internal keys not strictly increasing"}
			}
			if lower != nil && k <= *lower {
				return &dberrors.CorruptPageError{PageID: pageID, Reason: "internal key below expected lower bound"}
			}
			if upper != nil && k > *upper {
				return &dberrors.CorruptPageError{PageID: pageID, Reason: "internal key above expected upper bound"}
			}
			prevKey = k
		}

		for i := uint32(0); i <= n; i++ {
			childLower, childUpper := lower, upper
			if i > 0 {
				k := in.GetKey(i - 1)
				childLower = &k
			}
			if i < n {
				k := in.GetKey(i)
				childUpper = &k
			}
			if err := t.checkNode(in.GetChild(i), pageID, childLower, childUpper); err != nil {
				return err
			}
		}
		return nil

	default:
		return &dberrors.CorruptPageError{PageID: pageID, Reason: "unknown node type tag"}
	}
}

// DumpKeys walks the tree and returns every key in ascending order,
// for diagnostics and tests.
func (t *BTree) DumpKeys() ([]uint32, error) {
	cells, err := t.Select(0, ^uint32(0))
	if err != nil {
		return nil, err
	}
	keys := make([]uint32, len(cells))
	for i, c := range cells {
		keys[i] = c.Key
	}
	return keys, nil
}
