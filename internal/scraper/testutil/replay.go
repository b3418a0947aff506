package testutil

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const maxRedirects = 10

// Replayer answers hijacked browser requests from an Archive.
//
// Requests are matched on method and full URL first, then on method and URL
// without the query string. When the same request was recorded several times
// (the portal polls its session endpoints) the recorded responses are served
// in order and the last one repeats.
type Replayer struct {
	mu      sync.Mutex
	exact   map[string][]*Entry
	byPath  map[string][]*Entry
	served  map[string]int
	hits    int
	misses  int
	verbose bool
	network bool
	log     *zap.Logger
}

type ReplayerOption func(*Replayer)

// WithPassthrough sends unmatched requests to the network instead of
// answering 404.
func WithPassthrough(enabled bool) ReplayerOption {
	return func(r *Replayer) { r.network = enabled }
}

// WithVerbose logs every match and miss.
func WithVerbose(enabled bool) ReplayerOption {
	return func(r *Replayer) { r.verbose = enabled }
}

func WithLogger(log *zap.Logger) ReplayerOption {
	return func(r *Replayer) {
		if log != nil {
			r.log = log
		}
	}
}

func NewReplayer(a *Archive, opts ...ReplayerOption) *Replayer {
	r := &Replayer{
		exact:  make(map[string][]*Entry),
		byPath: make(map[string][]*Entry),
		served: make(map[string]int),
		log:    zap.L(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.Named("replayer")

	for i := range a.Entries {
		e := &a.Entries[i]
		r.exact[exactKey(e.Request.Method, e.Request.URL)] = append(r.exact[exactKey(e.Request.Method, e.Request.URL)], e)
		if k, ok := pathKey(e.Request.Method, e.Request.URL); ok {
			r.byPath[k] = append(r.byPath[k], e)
		}
	}
	return r
}

// Middleware returns a hijack handler for the browser router.
func (r *Replayer) Middleware() func(*rod.Hijack) {
	return func(h *rod.Hijack) {
		method := h.Request.Method()
		reqURL := h.Request.URL().String()

		e := r.lookup(method, reqURL)
		if e == nil {
			if r.verbose {
				r.log.Info("no recording", zap.String("method", method), zap.String("url", reqURL))
			}
			if r.network {
				_ = h.LoadResponse(http.DefaultClient, true)
				return
			}
			serve(h, &Response{
				Status:  http.StatusNotFound,
				Headers: []Header{{Name: "Content-Type", Value: "application/json"}},
				Content: Content{Text: `{"error":"no recording for request"}`},
			})
			return
		}

		e = r.follow(e)
		if r.verbose {
			r.log.Info("replayed", zap.String("method", method), zap.String("url", reqURL), zap.Int("status", e.Response.Status))
		}
		serve(h, &e.Response)
	}
}

func (r *Replayer) lookup(method, rawURL string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := exactKey(method, rawURL)
	e := r.next(k, r.exact[k])
	if e == nil {
		if pk, ok := pathKey(method, rawURL); ok {
			e = r.next(pk, r.byPath[pk])
		}
	}
	if e == nil {
		r.misses++
	} else {
		r.hits++
	}
	return e
}

// next returns the next unserved entry for k. Callers hold r.mu.
func (r *Replayer) next(k string, entries []*Entry) *Entry {
	if len(entries) == 0 {
		return nil
	}
	i := r.served[k]
	if i >= len(entries) {
		i = len(entries) - 1
	}
	r.served[k]++
	return entries[i]
}

// follow resolves recorded 3xx responses to the final page. The browser never
// sees the redirect so hijacked navigations stay on one request.
func (r *Replayer) follow(e *Entry) *Entry {
	for range maxRedirects {
		if e.Response.Status < 300 || e.Response.Status >= 400 {
			return e
		}
		loc := e.Response.Header("Location")
		if loc == "" {
			return e
		}
		if base, err := url.Parse(e.Request.URL); err == nil {
			if ref, err := base.Parse(loc); err == nil {
				loc = ref.String()
			}
		}
		target := r.lookup(http.MethodGet, loc)
		if target == nil {
			r.log.Debug("redirect target not recorded", zap.String("location", loc))
			return e
		}
		e = target
	}
	return e
}

func serve(h *rod.Hijack, resp *Response) {
	headers := make([]*proto.FetchHeaderEntry, 0, len(resp.Headers)+1)
	for _, hd := range resp.Headers {
		switch strings.ToLower(hd.Name) {
		case "content-encoding", "content-length", "location":
			continue
		}
		headers = append(headers, &proto.FetchHeaderEntry{Name: hd.Name, Value: hd.Value})
	}
	if resp.Header("Content-Type") == "" && resp.Content.MimeType != "" {
		headers = append(headers, &proto.FetchHeaderEntry{Name: "Content-Type", Value: resp.Content.MimeType})
	}

	p := h.Response.Payload()
	p.ResponseCode = resp.Status
	p.ResponseHeaders = headers
	p.Body = resp.Content.Bytes()
}

// Stats reports the index sizes and how many requests were answered.
func (r *Replayer) Stats() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]int{
		"exact_matches": len(r.exact),
		"path_matches":  len(r.byPath),
		"hits":          r.hits,
		"misses":        r.misses,
	}
}

func exactKey(method, rawURL string) string {
	return strings.ToUpper(method) + " " + rawURL
}

func pathKey(method, rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	return strings.ToUpper(method) + " " + u.Scheme + "://" + u.Host + u.Path, true
}
