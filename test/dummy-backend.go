//go:build ignore

// Dummy upstream for manual gateway testing. Echoes request details back
// and serves a health endpoint.
//
//	go run test/dummy-backend.go -port 3001 -name auth
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"time"
)

func main() {
	port := flag.String("port", "3001", "listen port")
	name := flag.String("name", "dummy", "service name")
	flag.Parse()

	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "healthy",
			"service":   *name,
			"timestamp": time.Now().Unix(),
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service": *name,
			"method":  r.Method,
			"path":    r.URL.Path,
			"query":   r.URL.RawQuery,
			"body":    string(body),
			"user_id": r.Header.Get("X-User-ID"),
		})
	})

	log.Printf("Dummy backend %q listening on :%s", *name, *port)
	log.Fatal(http.ListenAndServe(":"+*port, mux))
}
