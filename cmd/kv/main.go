// Program kv is a sharded in-memory key-value service on the chmicro
// framework, used as the target of the load generator.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/creachadair/command"
	"github.com/creachadair/flax"

	"github.com/chmicro/chmicro/app"
	"github.com/chmicro/chmicro/core/http"
	"github.com/chmicro/chmicro/core/logging"
	"github.com/chmicro/chmicro/core/metrics"
)

type settings struct {
	Listen   string `flag:"listen,Listen address (host:port)" env:"CHMICRO_LISTEN"`
	Threads  int    `flag:"threads,I/O threads (0 = hardware concurrency)" env:"CHMICRO_IO_THREADS"`
	Log      string `flag:"log,Log level (trace|debug|info|warn|error|off)" env:"CHMICRO_LOG"`
	Shards   int    `flag:"shards,Number of store shards"`
	MaxValue int    `flag:"max-value,Maximum value size in bytes"`
}

func main() {
	set := settings{Listen: "0.0.0.0:8087", Log: "info", Shards: 64, MaxValue: 4096}
	if err := env.Parse(&set); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: "Sharded in-memory key-value service on the chmicro framework.",
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

var requestSeq atomic.Uint64

// makeRequestID mints a process-unique id for requests arriving without one.
func makeRequestID() string {
	now := time.Now().UnixMicro()
	return strconv.FormatInt(now, 10) + "-" + strconv.FormatUint(requestSeq.Add(1), 10)
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

	store := NewStore(set.Shards)
	r := buildRouter(store, set.MaxValue)

	a.AddServer(http.NewServer(a.Io(), addr, r))

	logging.Info("KV service ready", "listen", addr.String(),
		"shards", set.Shards, "max_value", set.MaxValue)
	logging.Info("press Ctrl+C to stop")
	a.Run()
	return nil
}

// buildRouter wires the KV endpoints over the store.
func buildRouter(store *Store, maxValue int) *http.Router {
	r := http.NewRouter()

	// Propagate or mint a request id; surface the trace ids as headers.
	r.Use(func(req *http.Request, resp *http.Response, next http.Next) {
		id := req.Header("x-request-id")
		if id == "" {
			id = makeRequestID()
		}
		resp.SetHeader("x-request-id", id)
		resp.SetHeader("x-trace-id", req.Trace.TraceID)
		resp.SetHeader("x-span-id", req.Trace.SpanID)
		next()
	})

	r.GET("/health", func(_ *http.Request, resp *http.Response) {
		resp.Text(200, "ok")
	})

	r.GET("/stats", func(_ *http.Request, resp *http.Response) {
		resp.JSON(200, map[string]int{"keys": store.Size()})
	})

	// GET /get?key=foo
	r.GET("/get", func(req *http.Request, resp *http.Response) {
		key := req.QueryValue("key")
		if key == "" {
			resp.JSON(400, map[string]string{"error": "missing query param: key"})
			return
		}
		value, ok := store.Get(key)
		if !ok {
			resp.JSON(404, map[string]string{"error": "not found", "key": key})
			return
		}
		resp.JSON(200, map[string]string{
			"key":         key,
			"value":       value,
			"traceparent": req.Trace.String(),
		})
	})

	// POST /put  {"key":"k","value":"v"}
	r.POST("/put", func(req *http.Request, resp *http.Response) {
		var body struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := json.Unmarshal(req.Body, &body); err != nil {
			resp.JSON(400, map[string]string{"error": "invalid json"})
			return
		}
		if body.Key == "" {
			resp.JSON(400, map[string]string{"error": "missing field: key"})
			return
		}
		if len(body.Value) > maxValue {
			resp.JSON(413, map[string]any{"error": "value too large", "max": maxValue})
			return
		}
		store.Put(body.Key, body.Value)
		resp.JSON(200, map[string]bool{"ok": true})
	})

	// GET /compute?iters=100000 burns CPU on the owning loop; it exists to
	// demonstrate handler cost under load.
	r.GET("/compute", func(req *http.Request, resp *http.Response) {
		iters := uint64(10000)
		if s := req.QueryValue("iters"); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err == nil {
				iters = n
			}
		}
		cpuBurn(iters)
		resp.JSON(200, map[string]any{"ok": true, "iters": iters})
	})

	r.GET("/metrics", func(_ *http.Request, resp *http.Response) {
		resp.Status = 200
		resp.ContentType = "text/plain; version=0.0.4; charset=utf-8"
		resp.Body = []byte(metrics.Default().ToPrometheusText())
	})

	return r
}

// cpuBurn runs an xorshift loop that the compiler cannot elide.
func cpuBurn(iters uint64) {
	var sink uint64
	x := uint64(0x9e3779b97f4a7c15)
	for i := uint64(0); i < iters; i++ {
		x ^= x >> 12
		x ^= x << 25
		x ^= x >> 27
		sink ^= x * 0x2545F4914F6CDD1D
	}
	burnSink.Store(sink)
}

var burnSink atomic.Uint64

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
