// Package mmap provides zero-copy memory-mapped reads of subpartition
// blob files, with kernel read-ahead sized off the configured
// --readahead window (pkg/config.DBConfig.ReadaheadMB).
package mmap

import (
	"os"
	"sync"

	"github.com/locustdb/locustdb/pkg/dberrors"
)

// Reader memory-maps one file for zero-copy ReadRange calls. Used by
// the local disk blob store to serve subpartition byte ranges without
// an intervening read(2) copy.
type Reader struct {
	file     *os.File
	data     []byte
	fileSize int64
	pageSize int

	readaheadBytes int64

	bytesRead int64
	pagesRead int64

	mu sync.RWMutex
}

// NewReader memory-maps filename read-only. readaheadMB controls how
// far ahead of a requested range the kernel is advised to prefetch;
// zero disables read-ahead advice (SeqDiskRead / small requests).
func NewReader(filename string, readaheadMB int) (*Reader, error) {
	file, err := os.Open(filename) //nolint:gosec // path is storage-manager controlled
	if err != nil {
		return nil, dberrors.Wrap(err, dberrors.Io, "open subpartition blob").WithDetail("path", filename)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, dberrors.Wrap(err, dberrors.Io, "stat subpartition blob").WithDetail("path", filename)
	}

	fileSize := stat.Size()
	if fileSize == 0 {
		file.Close()
		return nil, dberrors.New(dberrors.CorruptData, "subpartition blob is empty").WithDetail("path", filename)
	}

	data, err := mmap(int(file.Fd()), 0, int(fileSize), ProtRead, MapShared)
	if err != nil {
		file.Close()
		return nil, dberrors.Wrap(err, dberrors.Io, "mmap subpartition blob").WithDetail("path", filename)
	}

	_ = madvise(data, MadvSequential)

	return &Reader{
		file:           file,
		data:           data,
		fileSize:       fileSize,
		pageSize:       os.Getpagesize(),
		readaheadBytes: int64(readaheadMB) << 20,
	}, nil
}

// ReadAll returns the entire mapped file, zero-copy.
func (r *Reader) ReadAll() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.bytesRead = r.fileSize
	r.pagesRead = (r.fileSize + int64(r.pageSize) - 1) / int64(r.pageSize)
	return r.data
}

// ReadRange returns data[offset:offset+length], clamped to EOF, and
// advises the kernel to prefetch the configured read-ahead window
// past the end of the requested range.
func (r *Reader) ReadRange(offset, length int64) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if offset < 0 || offset >= r.fileSize {
		return nil, dberrors.Newf(dberrors.CorruptData, "range offset %d out of bounds [0,%d)", offset, r.fileSize)
	}

	end := offset + length
	if end > r.fileSize {
		end = r.fileSize
	}

	if r.readaheadBytes > 0 {
		r.prefetchRange(offset, end+r.readaheadBytes)
	}

	r.bytesRead += end - offset
	r.pagesRead += ((end - offset) + int64(r.pageSize) - 1) / int64(r.pageSize)

	return r.data[offset:end], nil
}

func (r *Reader) prefetchRange(start, end int64) {
	startPage := (start / int64(r.pageSize)) * int64(r.pageSize)
	endPage := ((end + int64(r.pageSize) - 1) / int64(r.pageSize)) * int64(r.pageSize)
	if endPage > r.fileSize {
		endPage = r.fileSize
	}
	if endPage <= startPage {
		return
	}
	_ = madvise(r.data[startPage:endPage], MadvWillneed)
}

// Close unmaps and closes the underlying file.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.data != nil {
		err = munmap(r.data)
		r.data = nil
	}
	if r.file != nil {
		if cerr := r.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		r.file = nil
	}
	return err
}

// Stats reports bytes and pages read through this reader.
func (r *Reader) Stats() (bytesRead, pagesRead int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bytesRead, r.pagesRead
}

// Size returns the mapped file's length in bytes.
func (r *Reader) Size() int64 { return r.fileSize }
