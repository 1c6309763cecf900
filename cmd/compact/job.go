package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tamirms/compactvec"
)

// job describes one model compaction. It is read from a YAML file and then
// overridden by any flag given on the command line.
type job struct {
	Model      string `yaml:"model"`
	Output     string `yaml:"output"`
	WordFile   string `yaml:"word_file"`
	Transform  string `yaml:"transform"`
	Restricted int    `yaml:"restricted"`
	Buckets    int    `yaml:"buckets"`
	Workers    int    `yaml:"workers"`
	Compress   string `yaml:"compress"`
}

func defaultJob() job {
	return job{
		Restricted: 50000,
		Buckets:    compactvec.DefaultWordBuckets,
		Workers:    1,
		Compress:   "none",
	}
}

// loadJob reads a YAML job file over the defaults. Unknown keys are errors.
func loadJob(path string) (job, error) {
	j := defaultJob()
	f, err := os.Open(path)
	if err != nil {
		return j, fmt.Errorf("open job file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&j); err != nil {
		return j, fmt.Errorf("parse job file %s: %w", path, err)
	}
	return j, nil
}

func (j job) validate() error {
	switch {
	case j.Model == "":
		return errors.New("no model given")
	case j.Output == "":
		return errors.New("no output given")
	case j.Restricted < 0:
		return fmt.Errorf("restricted must not be negative, got %d", j.Restricted)
	case j.Workers < 1:
		return fmt.Errorf("workers must be at least 1, got %d", j.Workers)
	}
	_, err := compactvec.ParseCompression(j.Compress)
	return err
}

func (j job) options() []compactvec.BuildOption {
	opts := []compactvec.BuildOption{
		compactvec.WithRestrictedWords(j.Restricted),
		compactvec.WithWordBuckets(j.Buckets),
		compactvec.WithWorkers(j.Workers),
	}
	if j.WordFile != "" {
		opts = append(opts, compactvec.WithWordFile(j.WordFile))
	}
	if j.Transform != "" {
		opts = append(opts, compactvec.WithTransformFile(j.Transform))
	}
	return opts
}
