// Query prints word vectors from a compactvec container.
//
// Usage:
//
//	go run ./cmd/query -store en.cv hello wörld
//	go run ./cmd/query -store s3://vectors/en.cv.zst -sim king,queen
//	go run ./cmd/query -store minio://localhost:9000/vectors/en.cv -n 10 hello
//
// Local paths are memory-mapped; object store locations are fetched with
// retries and decompressed according to their suffix.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tamirms/compactvec"
	"github.com/tamirms/compactvec/remote"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "query: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	location := flag.String("store", "", "container path or s3:// / minio:// location")
	sim := flag.String("sim", "", "print the cosine similarity of two comma-separated words")
	n := flag.Int("n", 5, "vector elements to print")
	digest := flag.String("digest", "", "verify the container against this hex digest")
	timeout := flag.Duration("timeout", 2*time.Minute, "fetch timeout for remote stores")
	verbose := flag.Bool("v", false, "log debug records")
	flag.Parse()

	if *location == "" {
		return errors.New("no -store given")
	}
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := compactvec.NewTextLogger(level)

	s, err := openStore(*location, *timeout, log)
	if err != nil {
		return err
	}
	defer s.Close()

	if *digest != "" {
		var want uint64
		if _, err := fmt.Sscanf(*digest, "%x", &want); err != nil {
			return fmt.Errorf("parse digest: %w", err)
		}
		if err := s.Verify(want); err != nil {
			return err
		}
	}

	if *sim != "" {
		a, b, ok := strings.Cut(*sim, ",")
		if !ok {
			return fmt.Errorf("-sim wants two words separated by a comma, got %q", *sim)
		}
		fmt.Printf("%s\t%s\t%.6f\n", a, b, s.Similarity(a, b))
	}

	for _, word := range flag.Args() {
		r := s.Lookup(word)
		kind := "subword"
		if r.Known {
			kind = "word"
		}
		k := min(*n, len(r.Vector))
		fmt.Printf("%s\t%s\t%.6g\t%v\n", word, kind, r.Frequency, r.Vector[:k])
	}
	return nil
}

func openStore(location string, timeout time.Duration, log *compactvec.Logger) (*compactvec.Store, error) {
	opts := []compactvec.StoreOption{compactvec.WithStoreLogger(log)}
	if !strings.Contains(location, "://") && compactvec.CompressionFromName(location) == compactvec.CompressionNone {
		return compactvec.Open(location, opts...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	f, name, err := remote.ParseURL(ctx, location)
	if err != nil {
		return nil, err
	}
	return compactvec.LoadRemote(ctx, f, name, opts...)
}
