package monitor

import "net/http"

// Recorder wraps a ResponseWriter and remembers the status code and body
// size actually sent to the client.
type Recorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func NewRecorder(w http.ResponseWriter) *Recorder {
	return &Recorder{ResponseWriter: w}
}

// Status is the first status written, or 200 when the handler wrote nothing.
func (rec *Recorder) Status() int {
	if rec.status == 0 {
		return http.StatusOK
	}
	return rec.status
}

func (rec *Recorder) Bytes() int { return rec.bytes }

func (rec *Recorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *Recorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

func (rec *Recorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rec *Recorder) Unwrap() http.ResponseWriter { return rec.ResponseWriter }

// Middleware counts every request on entry and every response with a
// status >= 400 once it has been sent. A panic escaping next counts as an
// error and keeps unwinding.
func (m *Monitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := EndpointKey(r.Method, r.URL.Path)
		m.TrackRequest(key)
		rec := NewRecorder(w)
		defer func() {
			if p := recover(); p != nil {
				m.TrackError(key)
				panic(p)
			}
		}()
		next.ServeHTTP(rec, r)
		if rec.Status() >= 400 {
			m.TrackError(key)
		}
	})
}
