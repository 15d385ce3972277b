// Program hello is a minimal service on the chmicro framework: a health
// probe, a greeting endpoint, and Prometheus metrics.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/creachadair/command"
	"github.com/creachadair/flax"

	"github.com/chmicro/chmicro/app"
	"github.com/chmicro/chmicro/core/http"
	"github.com/chmicro/chmicro/core/logging"
	"github.com/chmicro/chmicro/core/metrics"
)

type settings struct {
	Listen  string `flag:"listen,Listen address (host:port)" env:"CHMICRO_LISTEN"`
	Threads int    `flag:"threads,I/O threads (0 = hardware concurrency)" env:"CHMICRO_IO_THREADS"`
	Log     string `flag:"log,Log level (trace|debug|info|warn|error|off)" env:"CHMICRO_LOG"`
}

func main() {
	set := settings{Listen: "0.0.0.0:8086", Log: "info"}
	if err := env.Parse(&set); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: "Hello-world service on the chmicro framework.",
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
	addr, err := parseListen(set.Listen)
	if err != nil {
		return err
	}

	a, err := app.New(app.Options{IoThreads: set.Threads, LogLevel: set.Log})
	if err != nil {
		return err
	}

	r := http.NewRouter()
	r.GET("/health", func(_ *http.Request, resp *http.Response) {
		resp.Text(200, "ok")
	})
	r.GET("/hello", func(req *http.Request, resp *http.Response) {
		name := req.QueryValue("name")
		if name == "" {
			name = "world"
		}
		resp.JSON(200, map[string]string{
			"message":     "hello, " + name,
			"traceparent": req.Trace.String(),
		})
	})
	r.GET("/metrics", func(_ *http.Request, resp *http.Response) {
		resp.Status = 200
		resp.ContentType = "text/plain; version=0.0.4; charset=utf-8"
		resp.Body = []byte(metrics.Default().ToPrometheusText())
	})

	a.AddServer(http.NewServer(a.Io(), addr, r))

	logging.Info("press Ctrl+C to stop")
	a.Run()
	return nil
}

// parseListen splits host:port, validating the port range.
func parseListen(s string) (http.ListenAddress, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil || host == "" {
		return http.ListenAddress{}, fmt.Errorf("invalid --listen %q, expected host:port", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return http.ListenAddress{}, fmt.Errorf("invalid --listen port %q", portStr)
	}
	return http.ListenAddress{Host: host, Port: port}, nil
}
