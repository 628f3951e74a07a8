//go:build ignore
// +build ignore

// Manual concurrency stress test for the pickup path.
//
// Usage:
//
//	TOKEN=<librarian jwt> go run ./scripts/concurrency_test.go <borrowing_id1> <borrowing_id2> ...
//
// Or via environment variables:
//
//	TOKEN=<jwt> BORROWING_IDS=<id1>,<id2>,... go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Fires one goroutine per borrowing ID, all hitting POST /api/mark-pickup/:id
//     for approved requests of the SAME book at the same instant.
//  2. Tallies how many pickups succeeded versus were rejected for lack of stock.
//  3. With N approved requests against a book holding S copies, exactly
//     min(N, S) pickups must succeed; the guarded stock update rejects the rest.
//
// Prerequisites:
//   - Server running, DATABASE_URL set, schema migrated.
//   - A book with limited stock and several APPROVED/READY_FOR_PICKUP
//     borrowing records against it.
package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type pickupResult struct {
	BorrowingID string
	StatusCode  int
	Body        string
	Err         error
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}
	token := os.Getenv("TOKEN")
	if token == "" {
		log.Fatal("TOKEN env var with a librarian access token is required")
	}

	var ids []string
	if env := os.Getenv("BORROWING_IDS"); env != "" {
		ids = strings.Split(env, ",")
	}
	if args := os.Args[1:]; len(args) > 0 {
		ids = args
	}
	if len(ids) == 0 {
		log.Fatal("Usage: TOKEN=<jwt> go run ./scripts/concurrency_test.go <borrowing_id> [borrowing_id ...]")
	}

	fmt.Printf("=== Pickup Concurrency Test ===\n")
	fmt.Printf("Server     : %s\n", serverAddr)
	fmt.Printf("Borrowings : %d\n\n", len(ids))

	results := make([]pickupResult, len(ids))
	var wg sync.WaitGroup

	// Barrier so every request leaves at the same instant.
	start := make(chan struct{})

	for i, id := range ids {
		wg.Add(1)
		go func(idx int, borrowingID string) {
			defer wg.Done()
			<-start
			results[idx] = attemptPickup(serverAddr, token, strings.TrimSpace(borrowingID))
		}(i, id)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)
	wg.Wait()
	fmt.Println("All requests completed.")
	fmt.Println()

	var picked, rejected, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] borrowing=%-38s err=%v\n", r.BorrowingID, r.Err)
		case r.StatusCode == http.StatusOK:
			picked++
			fmt.Printf("  [PICK] borrowing=%-38s status=%d\n", r.BorrowingID, r.StatusCode)
		case r.StatusCode == http.StatusConflict:
			rejected++
			fmt.Printf("  [CONF] borrowing=%-38s status=%d body=%s\n", r.BorrowingID, r.StatusCode, r.Body)
		default:
			failures++
			fmt.Printf("  [FAIL] borrowing=%-38s status=%d body=%s\n", r.BorrowingID, r.StatusCode, r.Body)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Picked up : %d\n", picked)
	fmt.Printf("Rejected  : %d\n", rejected)
	fmt.Printf("Failures  : %d\n", failures)
	fmt.Printf("Total     : %d\n\n", len(ids))

	fmt.Println("--- Invariant Check ---")
	fmt.Println("The guarded stock update (stock + delta must stay within 0..inventory)")
	fmt.Println("runs inside a row-locked transaction, so successful pickups can never")
	fmt.Println("exceed the copies the book held when the test started.")

	if failures > 0 {
		fmt.Printf("\n[WARNING] %d request(s) failed — check server logs for details.\n", failures)
		os.Exit(1)
	}
}

func attemptPickup(serverAddr, token, borrowingID string) pickupResult {
	url := fmt.Sprintf("%s/api/mark-pickup/%s", serverAddr, borrowingID)

	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return pickupResult{BorrowingID: borrowingID, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return pickupResult{BorrowingID: borrowingID, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	return pickupResult{
		BorrowingID: borrowingID,
		StatusCode:  resp.StatusCode,
		Body:        strings.TrimSpace(string(raw)),
	}
}
