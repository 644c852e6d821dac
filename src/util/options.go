package util

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Options holds the backend configuration. It can be read from a TOML document, keys not present in the document
// keep their default values.
type Options struct {
	Threads    int    `toml:"threads"`     // Number of methods lowered in parallel.
	Verbose    bool   `toml:"verbose"`     // Set true to log progress to stderr.
	Scheduler  string `toml:"scheduler"`   // Basic block scheduler, one of SchedulerNaive or SchedulerErshov.
	SkipVerify bool   `toml:"skip-verify"` // Set true to lower graphs without verifying them first.
	DumpDot    string `toml:"dump-dot"`    // Directory receiving graphviz dumps of every method. Empty disables dumps.
	Target     string `toml:"target"`      // Output target architecture.
}

// ---------------------
// ----- Constants -----
// ---------------------

// MaxThreads is the maximum number of threads allowed executing in parallel.
const MaxThreads = 64

// Basic block schedulers.
const (
	SchedulerNaive  = "naive"
	SchedulerErshov = "ershov"
)

// Target architectures.
const (
	TargetX86_64 = "x86_64"
)

// -------------------
// ----- globals -----
// -------------------

// ---------------------
// ----- functions -----
// ---------------------

// DefaultOptions returns the default configuration: sequential lowering using the naive scheduler for x86_64.
func DefaultOptions() Options {
	return Options{
		Threads:   1,
		Scheduler: SchedulerNaive,
		Target:    TargetX86_64,
	}
}

// ParseOptions decodes the TOML document data on top of the default configuration and validates the result.
// Unknown keys are reported as an error.
func ParseOptions(data string) (Options, error) {
	opt := DefaultOptions()
	md, err := toml.Decode(data, &opt)
	if err != nil {
		return opt, fmt.Errorf("could not parse options: %w", err)
	}
	if err := undecoded(md); err != nil {
		return opt, err
	}
	return opt, opt.Validate()
}

// LoadOptions reads and decodes the TOML configuration file at path.
func LoadOptions(path string) (Options, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return DefaultOptions(), err
	}
	opt, err := ParseOptions(string(b))
	if err != nil {
		return opt, fmt.Errorf("%s: %w", path, err)
	}
	return opt, nil
}

// undecoded returns an error listing the keys of md that did not match any field of Options.
func undecoded(md toml.MetaData) error {
	keys := md.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	s := make([]string, len(keys))
	for i1, e1 := range keys {
		s[i1] = e1.String()
	}
	return fmt.Errorf("unknown option(s): %s", strings.Join(s, ", "))
}

// Validate checks that every field of opt holds a supported value.
func (opt Options) Validate() error {
	if opt.Threads < 1 || opt.Threads > MaxThreads {
		return fmt.Errorf("thread count must be integer in range [1, %d], got %d", MaxThreads, opt.Threads)
	}
	switch opt.Scheduler {
	case SchedulerNaive, SchedulerErshov:
	default:
		return fmt.Errorf("unexpected scheduler identifier: %s", opt.Scheduler)
	}
	if opt.Target != TargetX86_64 {
		return fmt.Errorf("unsupported output architecture: %s", opt.Target)
	}
	return nil
}
