// Package remote fetches container files from local disk or object storage so
// a store can be loaded on hosts that do not keep the container locally.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	cverrors "github.com/tamirms/compactvec/errors"
)

// Fetcher opens a named object for reading. Implementations return an error
// wrapping ErrNotFound when the object does not exist.
type Fetcher interface {
	Fetch(ctx context.Context, name string) (io.ReadCloser, error)
}

// LocalFetcher reads objects from a directory.
type LocalFetcher struct {
	Root string
}

func (f LocalFetcher) Fetch(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(f.Root, filepath.FromSlash(name)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", cverrors.ErrNotFound, name)
	}
	return file, err
}

// Retry configures how ReadAll retries transient failures.
type Retry struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	// Notify, if set, is called before every retry.
	Notify func(err error, wait time.Duration)
}

// DefaultRetry retries for up to one minute.
var DefaultRetry = Retry{
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     10 * time.Second,
	MaxElapsed:      time.Minute,
}

// NoRetry makes a single attempt.
var NoRetry = Retry{}

func (r Retry) policy(ctx context.Context) backoff.BackOff {
	if r.MaxElapsed <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	bo := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		bo.InitialInterval = r.InitialInterval
	}
	if r.MaxInterval > 0 {
		bo.MaxInterval = r.MaxInterval
	}
	bo.MaxElapsedTime = r.MaxElapsed
	return backoff.WithContext(bo, ctx)
}

// ReadAll fetches the whole object. A failed fetch or a failed read restarts
// the download until r gives up; a missing object or a cancelled context
// fails immediately.
func ReadAll(ctx context.Context, f Fetcher, name string, r Retry) ([]byte, error) {
	var data []byte
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		rc, err := f.Fetch(ctx, name)
		if err != nil {
			if errors.Is(err, cverrors.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		defer rc.Close()

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		data = buf.Bytes()
		return nil
	}

	var err error
	if r.Notify != nil {
		err = backoff.RetryNotify(op, r.policy(ctx), r.Notify)
	} else {
		err = backoff.Retry(op, r.policy(ctx))
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	return data, nil
}
