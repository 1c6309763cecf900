package compactvec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	cverrors "github.com/tamirms/compactvec/errors"
	"github.com/tamirms/compactvec/remote"
)

// Compression identifies how a distributed container is compressed.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// Extension returns the file suffix used for c, including the dot.
func (c Compression) Extension() string {
	switch c {
	case CompressionZstd:
		return ".zst"
	case CompressionLZ4:
		return ".lz4"
	default:
		return ""
	}
}

// ParseCompression parses "none", "zstd" or "lz4".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	}
	return 0, fmt.Errorf("%w: %q", cverrors.ErrUnknownCompression, s)
}

// CompressionFromName infers the compression of a file from its suffix.
func CompressionFromName(name string) Compression {
	switch {
	case strings.HasSuffix(name, ".zst"):
		return CompressionZstd
	case strings.HasSuffix(name, ".lz4"):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// Load reads an uncompressed container from r into memory and opens it.
func Load(r io.Reader, opts ...StoreOption) (*Store, error) {
	return LoadCompressed(r, CompressionNone, opts...)
}

// LoadCompressed decompresses a container from r into memory and opens it.
func LoadCompressed(r io.Reader, c Compression, opts ...StoreOption) (*Store, error) {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return loadCompressed(r, c, cfg)
}

func loadCompressed(r io.Reader, c Compression, cfg *storeConfig) (*Store, error) {
	start := time.Now()
	data, err := decompress(r, c)
	if err != nil {
		return nil, err
	}
	cfg.logger.Debug("container loaded", "compression", c, "bytes", len(data), "elapsed", time.Since(start))
	return openBytes(data, cfg)
}

func decompress(r io.Reader, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read container: %w", err)
		}
		return data, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		data, err := io.ReadAll(dec)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return data, nil
	case CompressionLZ4:
		data, err := io.ReadAll(lz4.NewReader(r))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %v", cverrors.ErrUnknownCompression, c)
}

// LoadRemote fetches name through f, retrying transient failures, and opens
// it from memory. The compression is inferred from the name.
func LoadRemote(ctx context.Context, f remote.Fetcher, name string, opts ...StoreOption) (*Store, error) {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	log := cfg.logger.WithOutput(name)

	retry := remote.DefaultRetry
	retry.Notify = func(err error, next time.Duration) {
		log.Warn("fetch failed, retrying", "error", err, "backoff", next)
	}
	data, err := remote.ReadAll(ctx, f, name, retry)
	if err != nil {
		return nil, err
	}
	log.Info("container fetched", "bytes", len(data))

	cfg.logger = log
	c := CompressionFromName(name)
	if c == CompressionNone {
		return openBytes(data, cfg)
	}
	return loadCompressed(bytes.NewReader(data), c, cfg)
}

// CompressFile writes a compressed copy of the container at src to dst.
func CompressFile(src, dst string, c Compression) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open container: %w", err)
	}
	defer in.Close()
	if st, err := in.Stat(); err == nil {
		fadviseSequential(int(in.Fd()), 0, st.Size())
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, os.Remove(dst))
		}
	}()

	var w io.WriteCloser
	switch c {
	case CompressionZstd:
		enc, encErr := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if encErr != nil {
			return errors.Join(fmt.Errorf("zstd writer: %w", encErr), out.Close())
		}
		w = enc
	case CompressionLZ4:
		lw := lz4.NewWriter(out)
		if optErr := lw.Apply(lz4.CompressionLevelOption(lz4.Level5)); optErr != nil {
			return errors.Join(fmt.Errorf("lz4 writer: %w", optErr), out.Close())
		}
		w = lw
	default:
		return errors.Join(fmt.Errorf("%w: %v", cverrors.ErrUnknownCompression, c), out.Close())
	}

	if _, err := io.Copy(w, in); err != nil {
		return errors.Join(fmt.Errorf("compress: %w", err), w.Close(), out.Close())
	}
	if err := w.Close(); err != nil {
		return errors.Join(fmt.Errorf("finish compression: %w", err), out.Close())
	}
	return out.Close()
}
