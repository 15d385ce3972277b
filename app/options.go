package app

import (
	"github.com/caarlos0/env/v11"
)

// Options configure an App. The zero value is usable: IoThreads of 0 means
// hardware concurrency (floored at 1), and an empty LogLevel means info.
type Options struct {
	// IoThreads is the number of event loops and worker threads.
	IoThreads int `env:"CHMICRO_IO_THREADS"`
	// LogLevel is one of trace, debug, info, warn, error, off.
	LogLevel string `env:"CHMICRO_LOG" envDefault:"info"`
}

// OptionsFromEnv builds Options from CHMICRO_* environment variables.
// Command-line flags in the examples override these afterwards.
func OptionsFromEnv() (Options, error) {
	var opts Options
	if err := env.Parse(&opts); err != nil {
		return Options{}, err
	}
	return opts, nil
}
