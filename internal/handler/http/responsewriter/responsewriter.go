// Package responsewriter records the status code and body size of a
// response so access logs and metrics can report what was actually sent.
package responsewriter

import "net/http"

// Recorder wraps an http.ResponseWriter and remembers what passed through.
// A handler that never calls WriteHeader is reported as 200, matching what
// the client receives.
type Recorder struct {
	http.ResponseWriter

	status      int
	bytes       int
	wroteHeader bool
}

// NewRecorder wraps w.
func NewRecorder(w http.ResponseWriter) *Recorder {
	return &Recorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *Recorder) WriteHeader(status int) {
	// 最初の WriteHeader だけを記録する（net/http と同じ扱い）
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *Recorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// Status returns the status code sent to the client.
func (r *Recorder) Status() int { return r.status }

// Bytes returns the number of body bytes written.
func (r *Recorder) Bytes() int { return r.bytes }

// Unwrap exposes the underlying writer for http.ResponseController.
func (r *Recorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
