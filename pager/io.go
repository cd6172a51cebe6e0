package pager

import (
	"encoding/binary"
	"io"
	"os"

	"btreedb/dberrors"
)

var byteOrder = binary.LittleEndian

// readFullAt fills dst from f at off, retrying on short reads. EOF
// reached partway through dst is treated as a zero-filled tail, which
// is what lets GetPage read back a page that AllocatePage cached but
// that was never actually written to disk yet.
func readFullAt(f *os.File, dst []byte, off int64) error {
	total := 0
	for total < len(dst) {
		n, err := f.ReadAt(dst[total:], off+int64(total))
		total += n
		if err != nil {
			if err == io.EOF {
				for i := total; i < len(dst); i++ {
					dst[i] = 0
				}
				return nil
			}
			return dberrors.WrapIo("read", err)
		}
	}
	return nil
}

// writeFullAt writes all of src to f at off, retrying on short writes.
func writeFullAt(f *os.File, src []byte, off int64) error {
	total := 0
	for total < len(src) {
		n, err := f.WriteAt(src[total:], off+int64(total))
		total += n
		if err != nil {
			return dberrors.WrapIo("write", err)
		}
	}
	return nil
}
