// Package compactvec compacts a subword embedding model into a single
// memory-mappable container and answers word vector queries from it.
//
// A container keeps full-precision vectors only for the most frequent
// ("restricted") words. Every other token is composed from 4-bit quantized
// character n-gram vectors, so rare and unseen words still get a vector.
//
// # Basic Usage
//
// Encoding a model:
//
//	src, err := fasttext.Open("cc.en.300.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer src.Close()
//
//	stats, err := compactvec.Encode(ctx, src, "en.cv",
//	    compactvec.WithRestrictedWords(50000),
//	    compactvec.WithWordFile("en.words"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Querying a container:
//
//	s, err := compactvec.Open("en.cv")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	r := s.Lookup("unbelievably")
//	fmt.Println(r.Frequency, r.Known, r.Vector[:4])
//
// # Package Structure
//
//   - Encoder: builder.go (NewBuilder, Finish, Encode), builder_options.go
//   - Reader: store.go (Open, Lookup, LookupBatch), store_options.go
//   - Distribution: load.go (Load, LoadCompressed, LoadRemote, CompressFile)
//   - Serialization: header.go (header, layout), container_writer.go
//   - Building blocks: internal/fnv, internal/vocab, internal/quant,
//     internal/subword
//   - Sources: fasttext/ (trained .bin models), internal/synth (tests, bench)
//   - Platform: fallocate_*.go, prefault_*.go, fadvise_*.go
package compactvec
