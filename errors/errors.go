// Package errors defines all exported error sentinels for the compactvec library.
//
// This is the single source of truth for error values. The top-level
// compactvec package, the fasttext source and the internal packages all
// import from here, so errors.Is checks work across package boundaries.
package errors

import "errors"

// Build errors. All of them are permanent: re-running the job with the same
// inputs fails the same way.
var (
	ErrBuilderClosed   = errors.New("compactvec: builder is closed")
	ErrEmptyVocabulary = errors.New("compactvec: embedding source has no words")
	ErrTableFull       = errors.New("compactvec: word bucket count must exceed vocabulary size")
	ErrRestrictedWords = errors.New("compactvec: restricted word count out of range")
	ErrTransformSize   = errors.New("compactvec: transform matrix size does not match ndim*ndim")
	ErrInvalidWord     = errors.New("compactvec: word contains a NUL byte")
	ErrInvalidBuckets  = errors.New("compactvec: invalid bucket count")
)

// Container format errors, reported by Open and friends. A container that
// fails validation is never partially loaded.
var (
	ErrTruncatedFile      = errors.New("compactvec: container file is truncated")
	ErrCorruptedContainer = errors.New("compactvec: container data is corrupted")
	ErrOddDimension       = errors.New("compactvec: vector dimension must be even")
	ErrChecksumFailed     = errors.New("compactvec: container digest mismatch")
)

// Query errors
var (
	ErrStoreClosed = errors.New("compactvec: store is closed")
)

// Source and distribution errors
var (
	ErrUnsupportedModel   = errors.New("compactvec: unsupported model file")
	ErrUnknownCompression = errors.New("compactvec: unknown compression")
	ErrNotFound           = errors.New("compactvec: object not found")
)
