// Package metadata implements the processing pipeline that routes
// namespaced metadata payloads through the capability registry on
// every request and response that carries them.
package metadata

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront-api/internal/capability"
)

type Pipeline struct {
	registry *capability.Registry
}

func NewPipeline(registry *capability.Registry) *Pipeline {
	return &Pipeline{registry: registry}
}

// ProcessMap runs the response-path transformation over one metadata
// map in place: enabled namespaces are processed, everything else is
// left untouched. Disabled and unknown keys passing through unchanged
// is the forward-compatibility contract, not an omission.
func (p *Pipeline) ProcessMap(meta map[string]any) {
	for key, value := range meta {
		ns := capability.Namespace(key)
		if !p.registry.IsEnabled(ns) {
			continue
		}
		meta[key] = p.registry.ProcessMetadata(ns, value)
	}
}

// RewriteMap runs the request-path transformation over one metadata
// map in place. Enabled namespaces validate then process; a key that
// fails validation is dropped, never a hard error. Disabled and
// unknown keys pass through unchanged.
func (p *Pipeline) RewriteMap(meta map[string]any) {
	for key, value := range meta {
		ns := capability.Namespace(key)
		if !p.registry.IsEnabled(ns) {
			continue
		}
		if !p.registry.ValidateMetadata(ns, value) {
			log.Debug().Str("key", key).Msg("pipeline: dropping metadata key that failed validation")
			delete(meta, key)
			continue
		}
		meta[key] = p.registry.ProcessMetadata(ns, value)
	}
}

// RewriteRequest is the request-side middleware. It only triggers for
// mutating methods with a JSON content type; the rewritten body
// replaces the original before the route handler executes.
func (p *Pipeline) RewriteRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !mutating(r.Method) || !jsonContentType(r.Header.Get("Content-Type")) || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := io.ReadAll(r.Body)
		_ = r.Body.Close()
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}

		rewritten, changed := p.rewriteBody(raw)
		if changed {
			raw = rewritten
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))
		r.ContentLength = int64(len(raw))
		r.Header.Set("Content-Length", strconv.Itoa(len(raw)))

		next.ServeHTTP(w, r)
	})
}

func (p *Pipeline) rewriteBody(raw []byte) ([]byte, bool) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		// Not a JSON object; the handler will reject it on its own terms.
		return nil, false
	}
	meta, ok := body["metadata"].(map[string]any)
	if !ok {
		return nil, false
	}

	p.RewriteMap(meta)

	out, err := json.Marshal(body)
	if err != nil {
		log.Warn().Err(err).Msg("pipeline: failed to re-encode rewritten request body")
		return nil, false
	}
	return out, true
}

// RewriteResponse is the response-side middleware. The handler's
// output is buffered, metadata-bearing objects inside it are processed
// through the registry, and the rewritten body is sent in its place.
func (p *Pipeline) RewriteResponse(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &bufferingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		raw := rec.buf.Bytes()
		if jsonContentType(rec.Header().Get("Content-Type")) {
			if rewritten, changed := p.processBody(raw); changed {
				raw = rewritten
			}
		}

		rec.Header().Set("Content-Length", strconv.Itoa(len(raw)))
		w.WriteHeader(rec.status)
		if _, err := w.Write(raw); err != nil {
			log.Warn().Err(err).Msg("pipeline: failed to write rewritten response body")
		}
	})
}

// processBody walks a decoded response body looking for metadata maps:
// a single resource carries one at the top level; a paginated envelope
// carries a collection in its first list-valued field, and each element
// is processed on its own.
func (p *Pipeline) processBody(raw []byte) ([]byte, bool) {
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, false
	}

	switch v := body.(type) {
	case map[string]any:
		if meta, ok := v["metadata"].(map[string]any); ok {
			p.ProcessMap(meta)
			break
		}
		if items, ok := firstListField(v); ok {
			p.processElements(items)
		}
	case []any:
		p.processElements(v)
	default:
		return nil, false
	}

	out, err := json.Marshal(body)
	if err != nil {
		log.Warn().Err(err).Msg("pipeline: failed to re-encode processed response body")
		return nil, false
	}
	return out, true
}

func (p *Pipeline) processElements(items []any) {
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if meta, ok := obj["metadata"].(map[string]any); ok {
			p.ProcessMap(meta)
		}
	}
}

// firstListField returns the first list-valued field of an envelope,
// in key order so repeated runs pick the same field.
func firstListField(obj map[string]any) ([]any, bool) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if items, ok := obj[k].([]any); ok {
			return items, true
		}
	}
	return nil, false
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func jsonContentType(ct string) bool {
	return strings.Contains(ct, "application/json")
}

type bufferingWriter struct {
	http.ResponseWriter
	buf         bytes.Buffer
	status      int
	wroteHeader bool
}

func (b *bufferingWriter) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.wroteHeader = true
	b.status = status
}

func (b *bufferingWriter) Write(p []byte) (int, error) {
	return b.buf.Write(p)
}
