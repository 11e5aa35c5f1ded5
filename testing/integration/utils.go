//go:build integration
// +build integration

package integration

import (
	"context"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/airenas/meetsum/internal/pkg/api"
)

// WaitForOpenOrFail waits for the port to open
func WaitForOpenOrFail(ctx context.Context, URL string) {
	u, err := url.Parse(URL)
	if err != nil {
		log.Fatalf("FAIL: can't parse %s", URL)
	}
	for {
		err = listen(net.JoinHostPort(u.Hostname(), u.Port()))
		if err == nil {
			return
		}
		select {
		case <-ctx.Done():
			log.Fatalf("FAIL: can't access %s", URL)
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// GetEnvOrFail returns env value or stops tests
func GetEnvOrFail(s string) string {
	res := os.Getenv(s)
	if res == "" {
		log.Fatalf("no env '%s'", s)
	}
	return res
}

func listen(urlStr string) error {
	log.Printf("dial %s", urlStr)
	conn, err := net.DialTimeout("tcp", urlStr, time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	return nil
}

// mockService acts as the transcription and summarization service
func mockService(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/upload":
		_, fh, err := r.FormFile(api.PrmFile)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"No file provided"}`))
			return
		}
		if fh.Filename == "bad.mp3" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unsupported format"}`))
			return
		}
		_, _ = w.Write([]byte(`{"transcript":"Hello world","file_type":"mp3","processing_info":{"word_count":2,"chunk_count":1}}`))
	case "/summarize":
		_, _ = w.Write([]byte(`{"success":true,"analysis_type":"sentiment","sentiment_analysis":"**Positive**",` +
			`"word_count":2,"processing_time":0.5}`))
	default:
		log.Printf("Unknown request to: %s", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

