package compactvec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	cverrors "github.com/tamirms/compactvec/errors"
	"github.com/tamirms/compactvec/internal/synth"
	"github.com/tamirms/compactvec/remote"
)

// buildTestContainer builds a container and returns its path and a set of
// probe tokens mixing restricted words, unrestricted words and unseen tokens.
func buildTestContainer(t *testing.T) (string, *BuildStats, []string) {
	t.Helper()
	src := newTestSource(t, 200)
	path, stats := buildContainer(t, src, WithWordBuckets(401), WithRestrictedWords(50))

	var probes []string
	for id := 0; id < 200; id += 7 {
		w, _ := src.Word(id)
		probes = append(probes, w)
	}
	rng := newTestRNG(t)
	probes = append(probes, synth.Words(20, rng.Uint64())...)
	probes = append(probes, "", "ünïcödé")
	return path, stats, probes
}

// assertSameAnswers checks that two stores agree on every probe.
func assertSameAnswers(t *testing.T, name string, want, got *Store, probes []string) {
	t.Helper()
	for _, p := range probes {
		a, b := want.Lookup(p), got.Lookup(p)
		if a.Known != b.Known || a.Frequency != b.Frequency || !slices.Equal(a.Vector, b.Vector) {
			t.Fatalf("%s: %q differs: %+v vs %+v", name, p, a, b)
		}
	}
}

// TestOpenFile verifies that OpenFile produces a store that agrees with Open
// on all queries and Verify.
func TestOpenFile(t *testing.T) {
	path, stats, probes := buildTestContainer(t)

	ref, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ref.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("os.Open: %v", err)
	}
	s, err := OpenFile(f)
	// The mapping outlives the descriptor.
	if closeErr := f.Close(); closeErr != nil {
		t.Fatal(closeErr)
	}
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer s.Close()

	assertSameAnswers(t, "OpenFile", ref, s, probes)
	if err := s.Verify(stats.Digest); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestOpenBytes(t *testing.T) {
	path, stats, probes := buildTestContainer(t)
	ref, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ref.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s, err := OpenBytes(data)
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	assertSameAnswers(t, "OpenBytes", ref, s, probes)
	if err := s.Verify(stats.Digest); err != nil {
		t.Errorf("Verify: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path, _, probes := buildTestContainer(t)
	ref, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ref.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s, err := Load(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer s.Close()
	assertSameAnswers(t, "Load", ref, s, probes)

	if _, err := Load(bytes.NewReader(data[:len(data)/2])); !errors.Is(err, cverrors.ErrTruncatedFile) {
		t.Errorf("Load of half a container: %v, want ErrTruncatedFile", err)
	}
}

func TestCompressedRoundTrip(t *testing.T) {
	path, stats, probes := buildTestContainer(t)
	ref, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ref.Close()

	for _, c := range []Compression{CompressionZstd, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			dst := path + c.Extension()
			if err := CompressFile(path, dst, c); err != nil {
				t.Fatalf("CompressFile: %v", err)
			}
			if got := CompressionFromName(dst); got != c {
				t.Errorf("CompressionFromName(%q) = %v, want %v", dst, got, c)
			}

			f, err := os.Open(dst)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()
			s, err := LoadCompressed(f, c)
			if err != nil {
				t.Fatalf("LoadCompressed: %v", err)
			}
			defer s.Close()
			assertSameAnswers(t, c.String(), ref, s, probes)
			if err := s.Verify(stats.Digest); err != nil {
				t.Errorf("Verify: %v", err)
			}
		})
	}
}

func TestCompressFileRejectsNone(t *testing.T) {
	path, _, _ := buildTestContainer(t)
	dst := filepath.Join(t.TempDir(), "copy.cv")
	if err := CompressFile(path, dst, CompressionNone); !errors.Is(err, cverrors.ErrUnknownCompression) {
		t.Errorf("CompressFile(none) = %v, want ErrUnknownCompression", err)
	}
	if _, err := os.Stat(dst); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("destination left behind: %v", err)
	}
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{
		"":     CompressionNone,
		"none": CompressionNone,
		"zstd": CompressionZstd,
		"ZST":  CompressionZstd,
		"lz4":  CompressionLZ4,
	} {
		got, err := ParseCompression(in)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseCompression("gzip"); !errors.Is(err, cverrors.ErrUnknownCompression) {
		t.Errorf("ParseCompression(gzip) error = %v", err)
	}
	if _, err := LoadCompressed(bytes.NewReader(nil), Compression(9)); !errors.Is(err, cverrors.ErrUnknownCompression) {
		t.Errorf("LoadCompressed(9) error = %v", err)
	}
}

func TestLoadRemote(t *testing.T) {
	path, stats, probes := buildTestContainer(t)
	ref, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ref.Close()

	dir, name := filepath.Split(path)
	if err := CompressFile(path, path+".zst", CompressionZstd); err != nil {
		t.Fatal(err)
	}
	fetcher := remote.LocalFetcher{Root: dir}

	for _, n := range []string{name, name + ".zst"} {
		s, err := LoadRemote(context.Background(), fetcher, n)
		if err != nil {
			t.Fatalf("LoadRemote(%s): %v", n, err)
		}
		assertSameAnswers(t, n, ref, s, probes)
		if err := s.Verify(stats.Digest); err != nil {
			t.Errorf("%s: Verify: %v", n, err)
		}
		s.Close()
	}

	if _, err := LoadRemote(context.Background(), fetcher, "missing.cv"); !errors.Is(err, cverrors.ErrNotFound) {
		t.Errorf("LoadRemote(missing) error = %v, want ErrNotFound", err)
	}
}

func TestGetStats(t *testing.T) {
	path, stats, _ := buildTestContainer(t)
	got, err := GetStats(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Words != stats.Words || got.RestrictedWords != stats.RestrictedWords ||
		got.WordBuckets != stats.WordBuckets || got.SubwordBuckets != stats.SubwordBuckets ||
		got.Dim != stats.Dim || got.Size != stats.Size {
		t.Errorf("GetStats = %+v, build stats %+v", got, stats)
	}
	if got.Minn != testConfig.Minn || got.Maxn != testConfig.Maxn {
		t.Errorf("Minn/Maxn = %d/%d", got.Minn, got.Maxn)
	}
	if want := float64(stats.Size) / float64(stats.Words); got.BytesPerWord != want {
		t.Errorf("BytesPerWord = %v, want %v", got.BytesPerWord, want)
	}
}
