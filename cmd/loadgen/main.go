// Program loadgen drives a chmicro service as hard as its worker budget
// allows and prints a latency/throughput report.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	vegeta "github.com/tsenart/vegeta/v12/lib"
)

type settings struct {
	Host        string `flag:"host,Target host"`
	Port        int    `flag:"port,Target port"`
	Target      string `flag:"target,Request target (path and query)"`
	Threads     int    `flag:"threads,GOMAXPROCS for the generator (0 = default)"`
	Concurrency int    `flag:"concurrency,Concurrent connections/workers"`
	Warmup      int    `flag:"warmup,Warmup seconds (results discarded)"`
	Duration    int    `flag:"duration,Measured seconds"`
	TimeoutMS   int    `flag:"timeout-ms,Per-request timeout in milliseconds"`
}

func main() {
	set := settings{
		Host:        "127.0.0.1",
		Port:        8087,
		Target:      "/get?key=hot",
		Threads:     4,
		Concurrency: 128,
		Warmup:      2,
		Duration:    10,
		TimeoutMS:   1000,
	}

	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: "HTTP load generator for chmicro services.",
		SetFlags: func(_ *command.Env, fs *flag.FlagSet) {
			flax.MustBind(fs, &set)
		},
		Run: func(*command.Env) error { return run(set) },
	}
	if err := command.Run(root.NewEnv(nil), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
}

func run(set settings) error {
	if set.Port < 1 || set.Port > 65535 {
		return fmt.Errorf("invalid --port %d", set.Port)
	}
	if set.Concurrency < 1 {
		return fmt.Errorf("invalid --concurrency %d", set.Concurrency)
	}
	if set.Duration < 1 {
		return fmt.Errorf("invalid --duration %d", set.Duration)
	}
	if set.Threads > 0 {
		runtime.GOMAXPROCS(set.Threads)
	}

	url := "http://" + net.JoinHostPort(set.Host, fmt.Sprint(set.Port)) + set.Target
	targeter := vegeta.NewStaticTargeter(vegeta.Target{Method: "GET", URL: url})

	attacker := vegeta.NewAttacker(
		vegeta.Timeout(time.Duration(set.TimeoutMS)*time.Millisecond),
		vegeta.KeepAlive(true),
		vegeta.Connections(set.Concurrency),
		vegeta.Workers(uint64(set.Concurrency)),
		vegeta.MaxWorkers(uint64(set.Concurrency)),
		vegeta.HTTP2(false),
	)

	// Freq 0 means no pacing: the fixed worker pool drives max throughput.
	rate := vegeta.Rate{Freq: 0, Per: time.Second}

	if set.Warmup > 0 {
		fmt.Printf("warmup: %ds against %s\n", set.Warmup, url)
		for range attacker.Attack(targeter, rate, time.Duration(set.Warmup)*time.Second, "warmup") {
		}
	}

	fmt.Printf("measuring: %ds, concurrency=%d\n", set.Duration, set.Concurrency)
	var m vegeta.Metrics
	for res := range attacker.Attack(targeter, rate, time.Duration(set.Duration)*time.Second, "loadgen") {
		m.Add(res)
	}
	m.Close()

	return vegeta.NewTextReporter(&m).Report(os.Stdout)
}
