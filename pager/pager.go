// Package pager owns the database file: a 16-byte metadata header
// followed by a dense sequence of 4096-byte pages. It is the lowest
// layer of the storage engine (see the node and btree packages above
// it) and the only place that talks to the filesystem.
package pager

import (
	"fmt"
	"log/slog"
	"os"

	"btreedb/dberrors"
)

const (
	// PageSize is the fixed size of every page, including page 0.
	PageSize = 4096
	// MetaHeaderSize is the size of the file's leading metadata block:
	// root_page_id (uint64) followed by num_pages (uint64).
	MetaHeaderSize = 16
	// DefaultMaxPages bounds how many pages a single file may hold;
	// AllocatePage returns CapacityExceededError once it is reached.
	// Every Pager uses this value; there is no per-caller override.
	DefaultMaxPages = 1 << 32
)

// Mode selects how Open behaves.
type Mode int

const (
	// Create truncates the file (or creates it) and starts empty.
	Create Mode = iota
	// Open requires a non-empty existing file with a valid header.
	Open
)

// Page is a mutable view of one 4096-byte page, cached by the Pager.
// Repeated GetPage calls for the same id return the same *Page within
// a session, so mutations made through a node view are visible to
// later reads of that page.
type Page struct {
	ID    uint64
	Data  [PageSize]byte
	Dirty bool
}

// Pager allocates pages, serves page buffers by id, persists the root
// page id and page count, and flushes everything on Close. It is not
// safe for concurrent use; the engine above it is single-threaded.
type Pager struct {
	file       *os.File
	pages      map[uint64]*Page
	numPages   uint64
	rootPageID uint64
	maxPages   uint64
	log        *slog.Logger
}

// OpenFile opens or creates the database file at path per mode. A nil
// logger defaults to slog.Default().
func OpenFile(path string, mode Mode, log *slog.Logger) (*Pager, error) {
	if log == nil {
		log = slog.Default()
	}
	switch mode {
	case Create:
		return createFile(path, log)
	case Open:
		return openExisting(path, log)
	default:
		return nil, &dberrors.InvalidModeError{Reason: "unknown open mode"}
	}
}

func createFile(path string, log *slog.Logger) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, dberrors.WrapIo("create", err)
	}
	p := &Pager{
		file:     f,
		pages:    make(map[uint64]*Page),
		maxPages: DefaultMaxPages,
		log:      log,
	}
	if err := p.flushMetadata(); err != nil {
		f.Close()
		return nil, err
	}
	log.Debug("pager: created", "path", path)
	return p, nil
}

func openExisting(path string, log *slog.Logger) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &dberrors.InvalidModeError{Reason: "Open mode requires an existing file: " + path}
		}
		return nil, dberrors.WrapIo("open", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, dberrors.WrapIo("stat", err)
	}
	if fi.Size() < MetaHeaderSize {
		f.Close()
		return nil, &dberrors.InvalidModeError{Reason: "file is shorter than the metadata header"}
	}

	var header [MetaHeaderSize]byte
	if err := readFullAt(f, header[:], 0); err != nil {
		f.Close()
		return nil, err
	}

	p := &Pager{
		file:       f,
		pages:      make(map[uint64]*Page),
		rootPageID: byteOrder.Uint64(header[0:8]),
		numPages:   byteOrder.Uint64(header[8:16]),
		maxPages:   DefaultMaxPages,
		log:        log,
	}
	log.Debug("pager: opened", "path", path, "rootPageID", p.rootPageID, "numPages", p.numPages)
	return p, nil
}

// NumPages returns the total number of allocated pages.
func (p *Pager) NumPages() uint64 { return p.numPages }

// RootPageID returns the page id currently serving as root. Not
// flushed to disk until Close (or the next AllocatePage).
func (p *Pager) RootPageID() uint64 { return p.rootPageID }

// SetRootPageID records a new root page id in memory; it reaches disk
// on the next AllocatePage or on Close.
func (p *Pager) SetRootPageID(id uint64) { p.rootPageID = id }

// GetPage returns the cached buffer for id, loading it from disk on
// first access. Fails if id >= NumPages().
//
// Callers receive the page's backing array directly (via Page.Data)
// and are free to write through it — the node package's views do
// exactly that. Since the pager can't distinguish a read from a
// write after the fact, every fetched page is marked dirty up front
// rather than tracking writes precisely; this costs a few redundant
// flushes of never-modified pages but never loses a write.
func (p *Pager) GetPage(id uint64) (*Page, error) {
	if id >= p.numPages {
		return nil, dberrors.WrapIo("get_page", errOutOfRange(id, p.numPages))
	}
	if pg, ok := p.pages[id]; ok {
		pg.Dirty = true
		return pg, nil
	}
	pg, err := p.loadFromDisk(id)
	if err != nil {
		return nil, err
	}
	pg.Dirty = true
	p.pages[id] = pg
	return pg, nil
}

func (p *Pager) loadFromDisk(id uint64) (*Page, error) {
	pg := &Page{ID: id}
	off := int64(MetaHeaderSize) + int64(id)*PageSize
	if err := readFullAt(p.file, pg.Data[:], off); err != nil {
		return nil, err
	}
	return pg, nil
}

// AllocatePage grows NumPages by one, returns a zero-filled cached
// buffer, and immediately persists the updated metadata header so a
// crash right after allocation loses at most the page body.
func (p *Pager) AllocatePage() (uint64, *Page, error) {
	if p.numPages >= p.maxPages {
		return 0, nil, &dberrors.CapacityExceededError{Requested: p.numPages + 1, Max: p.maxPages}
	}
	id := p.numPages
	p.numPages++
	pg := &Page{ID: id, Dirty: true}
	p.pages[id] = pg
	if err := p.flushMetadata(); err != nil {
		return 0, nil, err
	}
	p.log.Debug("pager: allocated page", "id", id)
	return id, pg, nil
}

// FlushPage writes a single dirty page back to disk and clears its
// dirty bit. A no-op if the page isn't cached or isn't dirty.
func (p *Pager) FlushPage(id uint64) error {
	pg, ok := p.pages[id]
	if !ok || !pg.Dirty {
		return nil
	}
	off := int64(MetaHeaderSize) + int64(id)*PageSize
	if err := writeFullAt(p.file, pg.Data[:], off); err != nil {
		return err
	}
	pg.Dirty = false
	return nil
}

func (p *Pager) flushMetadata() error {
	var header [MetaHeaderSize]byte
	byteOrder.PutUint64(header[0:8], p.rootPageID)
	byteOrder.PutUint64(header[8:16], p.numPages)
	return writeFullAt(p.file, header[:], 0)
}

// Close flushes every dirty cached page, writes the metadata header,
// and closes the file descriptor.
func (p *Pager) Close() error {
	for id, pg := range p.pages {
		if pg.Dirty {
			if err := p.FlushPage(id); err != nil {
				return err
			}
		}
	}
	if err := p.flushMetadata(); err != nil {
		return err
	}
	p.log.Debug("pager: closed", "numPages", p.numPages)
	return dberrors.WrapIo("close", p.file.Close())
}

func errOutOfRange(id, numPages uint64) error {
	return fmt.Errorf("page %d beyond EOF (%d pages)", id, numPages)
}
