package main

import (
	"flag"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	numRequests := flag.Int("n", 1000, "total requests")
	concurrentWorkers := flag.Int("c", 50, "concurrent workers")
	limit := flag.Int("limit", 3, "flights per request")
	flag.Parse()

	var successCount, rateLimitedCount, errorCount int64
	var wg sync.WaitGroup

	client := resty.New().
		SetBaseURL(*baseURL).
		SetTimeout(10 * time.Second)

	startTime := time.Now()

	jobs := make(chan int, *numRequests)

	// start workers
	for w := 0; w < *concurrentWorkers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for range jobs {
				resp, err := client.R().
					SetQueryParam("limit", fmt.Sprint(*limit)).
					Get("/api/flights/nearby")
				switch {
				case err != nil:
					fmt.Printf("Worker %d error: %v\n", id, err)
					atomic.AddInt64(&errorCount, 1)
				case resp.StatusCode() == http.StatusTooManyRequests:
					atomic.AddInt64(&rateLimitedCount, 1)
				case resp.IsSuccess():
					atomic.AddInt64(&successCount, 1)
				default:
					atomic.AddInt64(&errorCount, 1)
				}
			}
		}(w)
	}

	// send jobs
	for j := 0; j < *numRequests; j++ {
		jobs <- j
	}
	close(jobs)

	wg.Wait()

	duration := time.Since(startTime)
	requestsPerSecond := float64(*numRequests) / duration.Seconds()

	fmt.Println("Load Test Results:")
	fmt.Println("==================")
	fmt.Printf("Total Requests: %d\n", *numRequests)
	fmt.Printf("Successful: %d\n", successCount)
	fmt.Printf("Rate limited: %d\n", rateLimitedCount)
	fmt.Printf("Failed: %d\n", errorCount)
	fmt.Printf("Duration: %v\n", duration)
	fmt.Printf("Requests/sec: %.2f\n", requestsPerSecond)
	fmt.Printf("Success Rate: %.2f%%\n",
		float64(successCount)/float64(*numRequests)*100)
}
