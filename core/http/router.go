package http

// Handler serves one request by mutating the response.
type Handler func(*Request, *Response)

// Next advances the middleware chain. A middleware that never calls it
// short-circuits the request: later middleware and the handler are skipped.
type Next func()

// Middleware wraps handler execution. It may act before and after next().
type Middleware func(*Request, *Response, Next)

type routeKey struct {
	method string
	path   string
}

// Router dispatches on exact (method, path) pairs and runs the middleware
// chain in registration order before the matched handler.
//
// Build the router fully before handing it to a server; it is read without
// locking from every loop thread afterwards.
type Router struct {
	routes     map[routeKey]Handler
	middleware []Middleware
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[routeKey]Handler)}
}

// Use appends a middleware. Order of registration is order of execution.
func (r *Router) Use(mw Middleware) {
	r.middleware = append(r.middleware, mw)
}

// Add registers a handler for an exact method and path.
func (r *Router) Add(method, path string, h Handler) {
	r.routes[routeKey{method: method, path: path}] = h
}

// GET registers a GET route.
func (r *Router) GET(path string, h Handler) { r.Add("GET", path, h) }

// POST registers a POST route.
func (r *Router) POST(path string, h Handler) { r.Add("POST", path, h) }

// PUT registers a PUT route.
func (r *Router) PUT(path string, h Handler) { r.Add("PUT", path, h) }

// DELETE registers a DELETE route.
func (r *Router) DELETE(path string, h Handler) { r.Add("DELETE", path, h) }

// Handle routes one request. Unknown (method, path) pairs get a JSON 404.
func (r *Router) Handle(req *Request, resp *Response) {
	h, ok := r.routes[routeKey{method: req.Method, path: req.Path}]
	if !ok {
		resp.SetJSONString(404, `{"error":"not_found"}`)
		return
	}

	var idx int
	var run Next
	run = func() {
		if idx < len(r.middleware) {
			mw := r.middleware[idx]
			idx++
			mw(req, resp, run)
			return
		}
		h(req, resp)
	}
	run()
}
