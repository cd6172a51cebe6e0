// Package engine is the public entry point to the storage layer: it
// opens a database file, wires together the pager and the B+Tree, and
// exposes the single-table operations (insert, find, range select)
// the REPL and any other caller use. It owns no page or node logic of
// its own.
package engine

import (
	"log/slog"

	"btreedb/btree"
	"btreedb/node"
	"btreedb/pager"
)

// Mode selects whether OpenEngine creates a new database file or
// attaches to an existing one. It mirrors pager.Mode rather than
// re-exporting it, so callers of this package never need to import
// pager directly.
type Mode int

const (
	Create Mode = iota
	Open
)

func (m Mode) pagerMode() pager.Mode {
	if m == Create {
		return pager.Create
	}
	return pager.Open
}

// Options configures an Engine. RowSize is required; LeafLoad and
// InnerLoad are optional per-node key-count caps (0 means "use the
// raw, byte-derived capacity") mainly useful for tests that want to
// force small fanouts.
type Options struct {
	RowSize   uint32
	LeafLoad  uint32
	InnerLoad uint32
	Logger    *slog.Logger
}

// Engine is a single open database file plus its B+Tree.
type Engine struct {
	pager *pager.Pager
	tree  *btree.BTree
	log   *slog.Logger
}

// OpenEngine opens or creates the database file at path under opts.
func OpenEngine(path string, mode Mode, opts Options) (*Engine, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	p, err := pager.OpenFile(path, mode.pagerMode(), log)
	if err != nil {
		return nil, err
	}

	t, err := btree.Open(p, mode.pagerMode(), opts.RowSize, opts.LeafLoad, opts.InnerLoad, log)
	if err != nil {
		p.Close()
		return nil, err
	}

	return &Engine{pager: p, tree: t, log: log}, nil
}

// InsertStatus reports the outcome of Insert.
type InsertStatus int

const (
	Inserted InsertStatus = iota
	DuplicateKey
)

// Insert adds a row (exactly RowSize bytes) under key.
func (e *Engine) Insert(key uint32, value []byte) (InsertStatus, error) {
	res, err := e.tree.Insert(key, value)
	if err != nil {
		return Inserted, err
	}
	if res == btree.InsertDuplicateKey {
		return DuplicateKey, nil
	}
	return Inserted, nil
}

// Find looks up a single row by key. Exists is false if not present.
func (e *Engine) Find(key uint32) (value []byte, exists bool, err error) {
	loc, err := e.tree.Find(key)
	if err != nil {
		return nil, false, err
	}
	if !loc.Exists {
		return nil, false, nil
	}
	page, err := e.pager.GetPage(loc.PageID)
	if err != nil {
		return nil, false, err
	}
	leaf, err := node.AttachLeaf(page.Data[:])
	if err != nil {
		return nil, false, err
	}
	return append([]byte(nil), leaf.GetValue(loc.Slot)...), true, nil
}

// Select returns every row with a key in [min, max], ordered by key.
func (e *Engine) Select(min, max uint32) ([]btree.Cell, error) {
	return e.tree.Select(min, max)
}

// CheckValid verifies the on-disk tree's structural invariants.
func (e *Engine) CheckValid() error { return e.tree.CheckValid() }

// DumpKeys returns every key in ascending order.
func (e *Engine) DumpKeys() ([]uint32, error) { return e.tree.DumpKeys() }

// RowSize returns the configured fixed row width.
func (e *Engine) RowSize() uint32 { return e.tree.RowSize() }

// Close flushes all dirty pages and the file metadata, then closes the
// underlying file.
func (e *Engine) Close() error { return e.pager.Close() }
