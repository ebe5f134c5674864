package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriter frames payloads in the server-sent-events wire format and
// flushes after every event so consumers see progress immediately.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseWriter) Write(name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
		name = "error"
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
