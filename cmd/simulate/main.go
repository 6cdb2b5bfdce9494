// simulate races concurrent booking requests for one slot against a running
// api-server and reports how many won. With a healthy deployment the answer
// is always exactly one.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

type result struct {
	status int
	body   string
}

func main() {
	var (
		baseURL    = flag.String("url", "http://127.0.0.1:8080", "api-server base URL")
		providerID = flag.String("provider", "", "provider UUID (required)")
		patientID  = flag.String("patient", "", "patient UUID; empty books as guest")
		date       = flag.String("date", "", "slot date YYYY-MM-DD (required)")
		slot       = flag.String("time", "", "slot time HH:MM (required)")
		workers    = flag.Int("workers", 16, "concurrent booking attempts")
	)
	flag.Parse()

	if *providerID == "" || *date == "" || *slot == "" {
		flag.Usage()
		log.Fatal("provider, date and time are required")
	}

	payload, err := json.Marshal(map[string]string{
		"provider_id": *providerID,
		"patient_id":  *patientID,
		"date":        *date,
		"time":        *slot,
	})
	if err != nil {
		log.Fatalf("marshal payload: %v", err)
	}

	client := &http.Client{Timeout: 15 * time.Second}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []result
	)

	start := time.Now()
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			resp, err := client.Post(*baseURL+"/appointments", "application/json", bytes.NewReader(payload))
			if err != nil {
				mu.Lock()
				results = append(results, result{status: -1, body: err.Error()})
				mu.Unlock()
				return
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			mu.Lock()
			results = append(results, result{status: resp.StatusCode, body: string(body)})
			mu.Unlock()
		}()
	}
	wg.Wait()

	byStatus := make(map[int]int)
	for _, r := range results {
		byStatus[r.status]++
	}

	fmt.Printf("raced %d workers for (%s %s) in %s\n", *workers, *date, *slot, time.Since(start))
	for status, n := range byStatus {
		fmt.Printf("  status %d: %d\n", status, n)
	}

	if byStatus[http.StatusCreated] != 1 {
		log.Fatalf("expected exactly 1 winner, got %d", byStatus[http.StatusCreated])
	}
	fmt.Println("exactly one booking won the slot")
}
