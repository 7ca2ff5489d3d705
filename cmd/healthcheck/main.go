// Command healthcheck probes the streamsync /healthz endpoint and exits
// non-zero on failure. It exists for container HEALTHCHECK directives where
// curl is not installed in the image.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	target := os.Getenv("HEALTHCHECK_URL")
	if target == "" {
		target = "http://localhost:8080/healthz"
	}
	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, target, nil)
	if err != nil {
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		os.Exit(1)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
