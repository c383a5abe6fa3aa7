package eventlog

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Archive compresses the log file to <path>.zst and returns the archive
// path. The source log is left in place; rotation is the caller's decision.
func (l *Log) Archive() (string, error) {
	src, err := os.Open(l.path)
	if err != nil {
		return "", fmt.Errorf("open event log: %w", err)
	}
	defer src.Close()

	outPath := l.path + ".zst"
	dst, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}

	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("zstd writer: %w", err)
	}

	if _, err := io.Copy(enc, src); err != nil {
		_ = enc.Close()
		_ = dst.Close()
		return "", fmt.Errorf("compress event log: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("finish archive: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	return outPath, nil
}

// ReadArchive decompresses a .zst archive produced by Archive and returns
// its raw contents. Used by tooling that inspects archived logs.
func ReadArchive(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	return io.ReadAll(dec)
}
