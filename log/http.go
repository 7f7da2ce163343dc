package log

import (
	"fmt"
	"math/rand"
	"net/http"
)

type proxyResponseWriter struct {
	origin     http.ResponseWriter
	statusCode int
	bodySize   uint64
}

func (w *proxyResponseWriter) Header() http.Header {
	return w.origin.Header()
}

func (w *proxyResponseWriter) Write(raw []byte) (int, error) {
	written, err := w.origin.Write(raw)
	w.bodySize += uint64(written)
	return written, err
}

func (w *proxyResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.origin.WriteHeader(statusCode)
}

// LoggedHandler logs one line per HTTP request served by the wrapped handler.
type LoggedHandler struct {
	Tags       map[string]interface{}
	OriginFunc http.Handler
}

// TagLogHandler decorates handler; tags are appended to every log line.
func TagLogHandler(handler http.Handler, tags map[string]interface{}) *LoggedHandler {
	return &LoggedHandler{
		Tags:       tags,
		OriginFunc: handler,
	}
}

func (fun *LoggedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	proxy := &proxyResponseWriter{origin: w, statusCode: 200}

	fun.OriginFunc.ServeHTTP(proxy, r)

	sid := rand.Uint32()
	InfoMap(fun.Tags, fmt.Sprintf("(%x)[%v] %v %v %v %v %v", sid, r.RemoteAddr,
		r.Method, r.RequestURI, proxy.statusCode, r.ContentLength, proxy.bodySize))

	if GlobalLogLevel() >= LEVEL_TRACE {
		for k, v := range r.Header {
			DebugMap(fun.Tags, fmt.Sprintf("(%x) %v: %v", sid, k, v))
		}
	}
}
