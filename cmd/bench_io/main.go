// bench_io compares the ways a container can be brought into memory when its
// pages are not cached:
//
//  1. "mmap": Open, pages fault in on first lookup
//  2. "prefault": Open with WithPrefault, pages populated up front
//  3. "read": Load, the whole file is read onto the heap
//  4. "zstd" / "lz4": LoadCompressed from a compressed copy
//
// Before every mode the page cache for the files involved is dropped with
// fadvise(DONTNEED), then a cold pass and a warm pass of random lookups run.
//
// Usage:
//
//	go run ./cmd/bench_io -words 2000000 -dim 300
//	go run ./cmd/bench_io -store model.cv -mode mmap
//
// To simulate memory pressure (container exceeding page cache):
//
//	sudo systemd-run --scope -p MemoryMax=4G --uid=$(id -u) \
//	  go run ./cmd/bench_io -words 5000000
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tamirms/compactvec"
	"github.com/tamirms/compactvec/internal/synth"
)

const numQueries = 200_000

func main() {
	storePath := flag.String("store", "", "existing container (default: build a synthetic one)")
	numWords := flag.Int("words", 1_000_000, "synthetic vocabulary size")
	dim := flag.Int("dim", 300, "synthetic vector dimension")
	restricted := flag.Int("restricted", 50_000, "synthetic restricted words")
	mode := flag.String("mode", "all", "mode: mmap, prefault, read, zstd, lz4, or all")
	tmpDir := flag.String("dir", "", "temp directory (default: os.TempDir())")
	flag.Parse()

	if *tmpDir == "" {
		*tmpDir = os.TempDir()
	}
	workDir, err := os.MkdirTemp(*tmpDir, "bench-io-*")
	if err != nil {
		fmt.Printf("ERROR: create work dir: %v\n", err)
		return
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	path := *storePath
	if path == "" {
		path = filepath.Join(workDir, "bench.cv")
		fmt.Println("Building synthetic container...")
		if err := buildSynthetic(path, *numWords, *dim, *restricted); err != nil {
			fmt.Printf("ERROR: build: %v\n", err)
			return
		}
	}

	stats, err := compactvec.GetStats(path)
	if err != nil {
		fmt.Printf("ERROR: stats: %v\n", err)
		return
	}

	fmt.Printf("Configuration:\n")
	fmt.Printf("  Container:    %s (%.1f MB)\n", path, float64(stats.Size)/1e6)
	fmt.Printf("  Words:        %d (%d restricted)\n", stats.Words, stats.RestrictedWords)
	fmt.Printf("  Dim:          %d\n", stats.Dim)
	fmt.Printf("  GOMAXPROCS:   %d\n", runtime.GOMAXPROCS(0))
	fmt.Println()

	tokens, err := queryTokens(path, numQueries)
	if err != nil {
		fmt.Printf("ERROR: tokens: %v\n", err)
		return
	}

	run := func(name string) bool { return *mode == "all" || *mode == name }

	if run("mmap") {
		fmt.Println("=== mmap (lazy page faults) ===")
		benchMode(tokens, []string{path}, func() (*compactvec.Store, error) {
			return compactvec.Open(path)
		})
		fmt.Println()
	}
	if run("prefault") {
		fmt.Println("=== mmap + prefault ===")
		benchMode(tokens, []string{path}, func() (*compactvec.Store, error) {
			return compactvec.Open(path, compactvec.WithPrefault())
		})
		fmt.Println()
	}
	if run("read") {
		fmt.Println("=== read into heap ===")
		benchMode(tokens, []string{path}, func() (*compactvec.Store, error) {
			return loadFile(path, compactvec.CompressionNone)
		})
		fmt.Println()
	}
	for _, c := range []compactvec.Compression{compactvec.CompressionZstd, compactvec.CompressionLZ4} {
		if !run(c.String()) {
			continue
		}
		fmt.Printf("=== %s compressed ===\n", c)
		dst := filepath.Join(workDir, filepath.Base(path)+c.Extension())
		start := time.Now()
		if err := compactvec.CompressFile(path, dst, c); err != nil {
			fmt.Printf("  ERROR: compress: %v\n", err)
			continue
		}
		info, err := os.Stat(dst)
		if err != nil {
			fmt.Printf("  ERROR: stat: %v\n", err)
			continue
		}
		fmt.Printf("  Compress: %6.2fs (%.1f MB, ratio %.2f)\n",
			time.Since(start).Seconds(), float64(info.Size())/1e6, float64(stats.Size)/float64(info.Size()))
		benchMode(tokens, []string{dst}, func() (*compactvec.Store, error) {
			return loadFile(dst, c)
		})
		fmt.Println()
	}
}

func buildSynthetic(path string, numWords, dim, restricted int) error {
	src, err := synth.New(synth.Config{
		Dim:     dim,
		Minn:    3,
		Maxn:    6,
		Buckets: 2_000_000,
		Seed:    0x1234,
		Words:   synth.Words(numWords, 0x5eed),
	})
	if err != nil {
		return err
	}
	_, err = compactvec.Encode(context.Background(), src, path,
		compactvec.WithWordBuckets(max(compactvec.DefaultWordBuckets, 2*numWords+1)),
		compactvec.WithRestrictedWords(min(restricted, numWords+1)),
		compactvec.WithWorkers(runtime.GOMAXPROCS(0)),
	)
	return err
}

// queryTokens returns n tokens, half restricted words and half unseen tokens,
// in random order.
func queryTokens(path string, n int) ([]string, error) {
	s, err := compactvec.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()

	rng := rand.New(rand.NewPCG(42, 0))
	unseen := synth.Words(10_000, 0xbad5eed)
	tokens := make([]string, n)
	for i := range tokens {
		if i%2 == 0 && s.NumRestricted() > 0 {
			w, _ := s.Word(rng.IntN(s.NumRestricted()))
			tokens[i] = w
		} else {
			tokens[i] = unseen[rng.IntN(len(unseen))]
		}
	}
	rng.Shuffle(len(tokens), func(i, j int) { tokens[i], tokens[j] = tokens[j], tokens[i] })
	return tokens, nil
}

func loadFile(path string, c compactvec.Compression) (*compactvec.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	if c == compactvec.CompressionNone {
		return compactvec.Load(f)
	}
	return compactvec.LoadCompressed(f, c)
}

// dropCache asks the kernel to evict the cached pages of each file.
func dropCache(paths []string) {
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		if info, err := f.Stat(); err == nil {
			_ = unix.Fadvise(int(f.Fd()), 0, info.Size(), unix.FADV_DONTNEED)
		}
		_ = f.Close()
	}
}

// benchMode opens a store with cold page cache, then runs the query set
// twice: once cold and once warm.
func benchMode(tokens []string, files []string, open func() (*compactvec.Store, error)) {
	dropCache(files)

	openStart := time.Now()
	s, err := open()
	if err != nil {
		fmt.Printf("  ERROR: open: %v\n", err)
		return
	}
	openDur := time.Since(openStart)
	defer func() { _ = s.Close() }()

	dst := make([]float32, s.Dim())
	var checksum float32
	pass := func() time.Duration {
		start := time.Now()
		for _, tok := range tokens {
			s.LookupInto(dst, tok)
			checksum += dst[0]
		}
		return time.Since(start)
	}
	coldDur := pass()
	warmDur := pass()

	perQuery := func(d time.Duration) float64 {
		return float64(d.Nanoseconds()) / float64(len(tokens)) / 1000
	}
	fmt.Printf("  Open:   %8.2fms\n", float64(openDur.Microseconds())/1000)
	fmt.Printf("  Cold:   %8.2fμs/query\n", perQuery(coldDur))
	fmt.Printf("  Warm:   %8.2fμs/query [checksum=%.4f]\n", perQuery(warmDur), checksum)
	fmt.Printf("  Total:  %8.2fs\n", (openDur + coldDur + warmDur).Seconds())
}
