package compactvec

import "github.com/tamirms/compactvec/internal/vocab"

// DefaultWordBuckets is the default word hash table size, the vocabulary
// table size of trained fastText models.
const DefaultWordBuckets = vocab.DefaultBuckets

// BuildOption is a functional option for configuring builds.
type BuildOption func(*buildConfig)

type buildConfig struct {
	restrictedWords int // 0 = every word
	wordBuckets     int
	transform       []float32
	transformFile   string
	wordFile        string
	workers         int
	logger          *Logger
}

func defaultBuildConfig() *buildConfig {
	return &buildConfig{
		wordBuckets: DefaultWordBuckets,
		workers:     1,
		logger:      NoopLogger(),
	}
}

// WithRestrictedWords sets how many of the most frequent words keep a
// full-precision vector. The default keeps all of them.
func WithRestrictedWords(n int) BuildOption {
	return func(c *buildConfig) {
		c.restrictedWords = n
	}
}

// WithWordBuckets sets the size of the word hash table. It must exceed the
// vocabulary size.
func WithWordBuckets(n int) BuildOption {
	return func(c *buildConfig) {
		c.wordBuckets = n
	}
}

// WithTransform applies a row-major ndim×ndim matrix to every stored vector.
// The matrix is not copied.
func WithTransform(matrix []float32) BuildOption {
	return func(c *buildConfig) {
		c.transform = matrix
	}
}

// WithTransformFile reads the transform from a file of ndim×ndim
// little-endian float64 values.
func WithTransformFile(path string) BuildOption {
	return func(c *buildConfig) {
		c.transformFile = path
	}
}

// WithWordFile also writes every vocabulary word, NUL-terminated, to path.
func WithWordFile(path string) BuildOption {
	return func(c *buildConfig) {
		c.wordFile = path
	}
}

// WithWorkers sets the number of goroutines quantizing subword vectors. The
// container is byte-identical for any worker count.
func WithWorkers(n int) BuildOption {
	return func(c *buildConfig) {
		c.workers = n
	}
}

// WithLogger sets the build progress logger.
func WithLogger(l *Logger) BuildOption {
	return func(c *buildConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
