// Bench is a benchmarking tool for measuring compactvec encode performance,
// lookup latency, and memory usage over a synthetic model.
//
// Usage:
//
//	go run ./cmd/bench -words 1000000 -restricted 50000 -dim 300
//
// Flags:
//
//	-words       Vocabulary size (default: 1,000,000)
//	-restricted  Words kept at full precision (default: 50,000)
//	-dim         Vector dimension (default: 300)
//	-buckets     Subword buckets (default: 2,000,000)
//	-workers     Number of quantization workers (default: 1)
package main

import (
	"context"
	"flag"
	"fmt"
	mrand "math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"runtime/metrics"
	"runtime/pprof"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/tamirms/compactvec"
	"github.com/tamirms/compactvec/internal/fnv"
	"github.com/tamirms/compactvec/internal/subword"
	"github.com/tamirms/compactvec/internal/synth"
)

// getMaxRSS returns the maximum resident set size in bytes.
// Uses getrusage(RUSAGE_SELF) which tracks peak RSS since process start.
func getMaxRSS() uint64 {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		return 0
	}
	// On macOS, MaxRss is in bytes. On Linux, it's in kilobytes.
	maxRSS := uint64(rusage.Maxrss)
	if runtime.GOOS == "linux" {
		maxRSS *= 1024
	}
	return maxRSS
}

// hashThroughput hashes every n-gram of words with both functions and
// returns the time each took.
func hashThroughput(words []string, gen subword.Generator) (fnvTime, murmurTime time.Duration, ngrams int) {
	var sink uint32
	start := time.Now()
	for _, w := range words {
		for ng := range gen.Ngrams(subword.Bracket(w)) {
			sink ^= fnv.Hash32String(ng)
			ngrams++
		}
	}
	fnvTime = time.Since(start)

	start = time.Now()
	for _, w := range words {
		for ng := range gen.Ngrams(subword.Bracket(w)) {
			sink ^= murmur3.Sum32([]byte(ng))
		}
	}
	murmurTime = time.Since(start)
	_ = sink
	return fnvTime, murmurTime, ngrams
}

func main() {
	wordsFlag := flag.Int("words", 1_000_000, "vocabulary size")
	restrictedFlag := flag.Int("restricted", 50_000, "words kept at full precision")
	dimFlag := flag.Int("dim", 300, "vector dimension (even)")
	bucketsFlag := flag.Int("buckets", 2_000_000, "subword buckets")
	workersFlag := flag.Int("workers", 1, "number of quantization workers")
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to file (build phase only)")
	memprofile := flag.String("memprofile", "", "write memory profile to file (build phase only)")
	flag.Parse()

	numWords := *wordsFlag

	fmt.Println("Generating vocabulary...")
	words := synth.Words(numWords, 0x5eed)
	src, err := synth.New(synth.Config{
		Dim:     *dimFlag,
		Minn:    3,
		Maxn:    6,
		Buckets: *bucketsFlag,
		Seed:    0x1234,
		Words:   words,
	})
	if err != nil {
		fmt.Printf("synth.New failed: %v\n", err)
		return
	}

	fmt.Println("Hashing n-grams...")
	fnvTime, murmurTime, ngrams := hashThroughput(words, subword.Generator{Minn: 3, Maxn: 6})

	tmpDir, err := os.MkdirTemp("", "bench-")
	if err != nil {
		fmt.Printf("Failed to create temp dir: %v\n", err)
		return
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	containerPath := filepath.Join(tmpDir, "bench.cv")

	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	var baseline runtime.MemStats
	runtime.ReadMemStats(&baseline)
	baselineRSS := getMaxRSS()

	// 10ms sampling for peak memory (both heap and RSS).
	// Uses runtime/metrics instead of ReadMemStats to avoid stop-the-world pauses.
	var peakAlloc atomic.Uint64
	var peakRSS atomic.Uint64
	peakAlloc.Store(baseline.Alloc)
	peakRSS.Store(baselineRSS)
	done := make(chan struct{})
	go func() {
		samples := []metrics.Sample{
			{Name: "/memory/classes/heap/objects:bytes"},
		}
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				metrics.Read(samples)
				heapBytes := samples[0].Value.Uint64()
				for {
					old := peakAlloc.Load()
					if heapBytes <= old || peakAlloc.CompareAndSwap(old, heapBytes) {
						break
					}
				}
				rss := getMaxRSS()
				for {
					old := peakRSS.Load()
					if rss <= old || peakRSS.CompareAndSwap(old, rss) {
						break
					}
				}
			}
		}
	}()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Printf("could not create CPU profile: %v\n", err)
			return
		}
		defer func() { _ = f.Close() }()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Printf("could not start CPU profile: %v\n", err)
			return
		}
	}

	fmt.Println("Encoding container...")
	buildStart := time.Now()
	stats, err := compactvec.Encode(context.Background(), src, containerPath,
		compactvec.WithWordBuckets(max(compactvec.DefaultWordBuckets, 2*numWords+1)),
		compactvec.WithRestrictedWords(min(*restrictedFlag, numWords+1)),
		compactvec.WithWorkers(*workersFlag),
	)
	buildDuration := time.Since(buildStart)

	if *cpuprofile != "" {
		pprof.StopCPUProfile()
	}
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			fmt.Printf("could not create memory profile: %v\n", err)
		} else {
			runtime.GC()
			if err := pprof.WriteHeapProfile(f); err != nil {
				fmt.Printf("could not write memory profile: %v\n", err)
			}
			_ = f.Close()
		}
	}

	close(done)

	var final runtime.MemStats
	runtime.ReadMemStats(&final)
	if final.Alloc > peakAlloc.Load() {
		peakAlloc.Store(final.Alloc)
	}
	if finalRSS := getMaxRSS(); finalRSS > peakRSS.Load() {
		peakRSS.Store(finalRSS)
	}
	peakHeapMem := peakAlloc.Load() - baseline.Alloc
	peakRSSMem := peakRSS.Load() - baselineRSS

	if err != nil {
		fmt.Printf("Encode failed: %v\n", err)
		return
	}

	openStart := time.Now()
	s, err := compactvec.Open(containerPath, compactvec.WithPrefault())
	if err != nil {
		fmt.Printf("Open failed: %v\n", err)
		return
	}
	defer func() { _ = s.Close() }()
	openDuration := time.Since(openStart)

	known := make([]string, 0, stats.RestrictedWords)
	for id := range stats.RestrictedWords {
		w, _ := s.Word(id)
		known = append(known, w)
	}
	unseen := synth.Words(100_000, 0xbad5eed)
	mrand.Shuffle(len(known), func(i, j int) { known[i], known[j] = known[j], known[i] })

	dst := make([]float32, s.Dim())
	fmt.Println("Warming up lookups...")
	for i := range 10000 {
		s.LookupInto(dst, known[i%len(known)])
		s.LookupInto(dst, unseen[i%len(unseen)])
	}

	fmt.Println("Benchmarking lookups...")
	const numQueries = 100000
	start := time.Now()
	for i := range numQueries {
		s.LookupInto(dst, known[i%len(known)])
	}
	knownLatency := float64(time.Since(start).Nanoseconds()) / numQueries / 1000
	start = time.Now()
	for i := range numQueries {
		s.LookupInto(dst, unseen[i%len(unseen)])
	}
	unseenLatency := float64(time.Since(start).Nanoseconds()) / numQueries / 1000

	bytesPerWord := float64(stats.Size) / float64(stats.Words)
	mb := func(n int64) float64 { return float64(n) / 1_000_000 }

	fmt.Printf("\n")
	fmt.Printf("╔═════════════════════╦════════════════╗\n")
	fmt.Printf("║ Metric              ║ Value          ║\n")
	fmt.Printf("╠═════════════════════╬════════════════╣\n")
	fmt.Printf("║ Words               ║ %14d ║\n", stats.Words)
	fmt.Printf("║ Restricted words    ║ %14d ║\n", stats.RestrictedWords)
	fmt.Printf("║ Container size      ║ %9.1f MB   ║\n", mb(stats.Size))
	fmt.Printf("║ Bytes per word      ║ %9.1f B    ║\n", bytesPerWord)
	fmt.Printf("║ Build time          ║ %6.2f sec     ║\n", buildDuration.Seconds())
	fmt.Printf("║ Open time           ║ %6.2f ms      ║\n", float64(openDuration.Microseconds())/1000)
	fmt.Printf("║ Lookup (restricted) ║ %6.2f μs      ║\n", knownLatency)
	fmt.Printf("║ Lookup (subword)    ║ %6.2f μs      ║\n", unseenLatency)
	fmt.Printf("║ FNV-1a n-grams      ║ %6.1f M/sec   ║\n", float64(ngrams)/fnvTime.Seconds()/1_000_000)
	fmt.Printf("║ murmur3 n-grams     ║ %6.1f M/sec   ║\n", float64(ngrams)/murmurTime.Seconds()/1_000_000)
	fmt.Printf("║ Peak heap memory    ║ %6.1f MB      ║\n", float64(peakHeapMem)/1_000_000)
	fmt.Printf("║ Peak RSS memory     ║ %6.1f MB      ║\n", float64(peakRSSMem)/1_000_000)
	fmt.Printf("╚═════════════════════╩════════════════╝\n")
}
