// Compact encodes a trained fastText model into a compactvec container.
//
// Usage:
//
//	go run ./cmd/compact -model cc.en.300.bin -output en.cv -restricted 50000
//	go run ./cmd/compact -config en.yaml -compress zstd
//
// Flags override the values of the -config job file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/tamirms/compactvec"
	"github.com/tamirms/compactvec/fasttext"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "compact: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	config := flag.String("config", "", "YAML job file")
	model := flag.String("model", "", "fastText .bin model")
	output := flag.String("output", "", "container to write")
	wordFile := flag.String("words", "", "also write every vocabulary word, NUL-terminated, to this file")
	transform := flag.String("transform", "", "ndim×ndim float64 transform applied to every vector")
	restricted := flag.Int("restricted", 0, "words kept at full precision")
	buckets := flag.Int("buckets", 0, "word hash table size")
	workers := flag.Int("workers", 0, "quantization workers")
	compress := flag.String("compress", "", "also write a compressed copy: none, zstd or lz4")
	jsonLogs := flag.Bool("json", false, "log JSON instead of text")
	verbose := flag.Bool("v", false, "log debug records")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := compactvec.NewTextLogger(level)
	if *jsonLogs {
		log = compactvec.NewJSONLogger(level)
	}

	j := defaultJob()
	if *config != "" {
		var err error
		if j, err = loadJob(*config); err != nil {
			return err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			j.Model = *model
		case "output":
			j.Output = *output
		case "words":
			j.WordFile = *wordFile
		case "transform":
			j.Transform = *transform
		case "restricted":
			j.Restricted = *restricted
		case "buckets":
			j.Buckets = *buckets
		case "workers":
			j.Workers = *workers
		case "compress":
			j.Compress = *compress
		}
	})
	if err := j.validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	src, err := fasttext.Open(j.Model)
	if err != nil {
		return fmt.Errorf("open model: %w", err)
	}
	defer src.Close()
	log.Info("model loaded",
		"path", j.Model,
		"words", src.NumWords(),
		"labels", src.NumLabels(),
		"dim", src.Dim(),
		"buckets", src.SubwordBuckets(),
	)

	opts := append(j.options(), compactvec.WithLogger(log))
	stats, err := compactvec.Encode(ctx, src, j.Output, opts...)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d words (%d restricted), %d bytes, digest %016x\n",
		j.Output, stats.Words, stats.RestrictedWords, stats.Size, stats.Digest)

	c, _ := compactvec.ParseCompression(j.Compress)
	if c == compactvec.CompressionNone {
		return nil
	}
	dst := j.Output + c.Extension()
	if err := compactvec.CompressFile(j.Output, dst, c); err != nil {
		return err
	}
	if st, err := os.Stat(dst); err == nil {
		log.Info("compressed copy written", "path", dst, "compression", c.String(), "bytes", st.Size())
	}
	return nil
}
