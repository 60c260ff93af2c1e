package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// copyVerified copies src into a temp file in dir and checks the result
// against the source size and SHA-256. It returns the temp path; the caller
// renames it into place.
func copyVerified(ctx context.Context, src, dir, prefix string) (string, int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, "", fmt.Errorf("backup: open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", 0, "", fmt.Errorf("backup: stat source: %w", err)
	}

	out, err := os.CreateTemp(dir, "."+prefix+"-*.tmp")
	if err != nil {
		return "", 0, "", fmt.Errorf("backup: create temp file: %w", err)
	}
	tmp := out.Name()
	fail := func(err error) (string, int64, string, error) {
		_ = out.Close()
		_ = os.Remove(tmp)
		return "", 0, "", err
	}

	srcHash := sha256.New()
	written, err := io.Copy(out, io.TeeReader(&ctxReader{ctx: ctx, r: in}, srcHash))
	if err != nil {
		return fail(fmt.Errorf("backup: copy: %w", err))
	}
	if err := out.Sync(); err != nil {
		return fail(fmt.Errorf("backup: sync: %w", err))
	}
	if err := out.Close(); err != nil {
		return fail(fmt.Errorf("backup: close: %w", err))
	}

	if written != info.Size() {
		return fail(fmt.Errorf("backup: size mismatch: source %d bytes, copied %d bytes", info.Size(), written))
	}

	dstSum, err := fileSHA256(tmp)
	if err != nil {
		return fail(err)
	}
	if !bytes.Equal(srcHash.Sum(nil), dstSum) {
		return fail(fmt.Errorf("backup: hash mismatch: copy of %s is corrupt", src))
	}

	return tmp, written, hex.EncodeToString(dstSum), nil
}

func fileSHA256(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backup: reopen copy: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("backup: hash copy: %w", err)
	}
	return h.Sum(nil), nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
