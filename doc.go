/*
Package chmicro is a small-footprint microservice framework: structured HTTP
routing with middleware, W3C trace propagation, Prometheus-style metrics, and
client-side resilience (retry, circuit breaker, round-robin balancing) over
an in-memory service table.

The runtime owns N single-threaded event loops (epoll on Linux, kqueue on
BSDs), each pinned to one OS thread. Every accepted connection is bound to
one loop, so its reads, writes, and handlers are serialized without locks.
Handlers run on the owning loop and should stay short or offload work.

Basic usage:

	opts := app.Options{IoThreads: 0, LogLevel: "info"}
	a, err := app.New(opts)
	if err != nil {
	    log.Fatal(err)
	}

	r := http.NewRouter()
	r.GET("/health", func(req *http.Request, resp *http.Response) {
	    resp.Text(200, "ok")
	})
	r.GET("/metrics", func(req *http.Request, resp *http.Response) {
	    resp.Status = 200
	    resp.ContentType = "text/plain; version=0.0.4; charset=utf-8"
	    resp.Body = []byte(metrics.Default().ToPrometheusText())
	})

	a.AddServer(http.NewServer(a.Io(), http.ListenAddress{Host: "0.0.0.0", Port: 8086}, r))
	os.Exit(a.Run()) // blocks until SIGINT/SIGTERM or Stop

Modules:

  - app: lifecycle, signal handling, option defaults from the environment
  - config: JSON config file loading with typed lookups
  - core/status: uniform error carrier with a fixed code set
  - core/trace: traceparent generation, parsing, propagation
  - core/metrics: counters, gauges, histograms with text exposition
  - core/logging: level-gated structured logging front-end
  - core/ioloop: event loop pool and kernel pollers
  - core/http: server, sessions, router, one-shot client
  - governance: service discovery, load balancing, resilient caller
  - resilience: circuit breaker and retry backoff

Example services live under cmd/: a hello-world (cmd/hello), a sharded
key-value store (cmd/kv), and a load generator (cmd/loadgen).
*/
package chmicro
