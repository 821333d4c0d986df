// Command loadtest drives GET /search with a rotation of queries, weight
// mixes and pages, then reports throughput, latency percentiles per mix and
// the share of queries that matched nothing.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:5000 -concurrency 20 -duration 1m
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	MaxPage     int
	Queries     []string
	Mixes       []WeightMix
}

// WeightMix is one (alpha, beta, gamma) setting sent to /search.
type WeightMix struct {
	Name               string
	Alpha, Beta, Gamma float64
}

var defaultMixes = []WeightMix{
	{Name: "default", Alpha: 0.6, Beta: 0.3, Gamma: 0.1},
	{Name: "lexical", Alpha: 1, Beta: 0, Gamma: 0},
	{Name: "pagerank", Alpha: 0, Beta: 1, Gamma: 0},
	{Name: "authority", Alpha: 0, Beta: 0, Gamma: 1},
	{Name: "bm25+pr", Alpha: 0.5, Beta: 0.5, Gamma: 0},
}

var defaultQueries = []string{
	"forest fire",
	"fire safety",
	"wildfire smoke",
	"national park",
	"search engine",
	"link analysis",
	"pagerank algorithm",
	"web crawler",
	"information retrieval",
	"deprem haberleri",
	"istanbul hava durumu",
	"machine learning",
	"ocean waves",
	"climate change",
	"hybrid ranking",
}

// sample is the outcome of one request.
type sample struct {
	mix        string
	latency    time.Duration
	status     int
	zeroResult bool
	err        error
}

// Recorder collects samples from all workers.
type Recorder struct {
	mu      sync.Mutex
	samples []sample
}

func (r *Recorder) add(s sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

// Report is the aggregate view printed at the end of a run.
type Report struct {
	Total       int
	Failed      int
	ZeroResults int
	Latencies   []time.Duration
	ByMix       map[string][]time.Duration
	StatusCodes map[int]int
}

func (r *Recorder) Report() Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := Report{
		Total:       len(r.samples),
		ByMix:       make(map[string][]time.Duration),
		StatusCodes: make(map[int]int),
	}
	for _, s := range r.samples {
		if s.err != nil {
			rep.Failed++
			continue
		}
		rep.StatusCodes[s.status]++
		if s.status < 200 || s.status >= 300 {
			rep.Failed++
			continue
		}
		if s.zeroResult {
			rep.ZeroResults++
		}
		rep.Latencies = append(rep.Latencies, s.latency)
		rep.ByMix[s.mix] = append(rep.ByMix[s.mix], s.latency)
	}
	slices.Sort(rep.Latencies)
	for _, ls := range rep.ByMix {
		slices.Sort(ls)
	}
	return rep
}

func main() {
	baseURL := flag.String("url", "http://localhost:5000", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	maxPage := flag.Int("max-page", 3, "pages 1..max-page are requested round-robin")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: max(*concurrency, 1),
		Duration:    *duration,
		MaxPage:     max(*maxPage, 1),
		Queries:     defaultQueries,
		Mixes:       defaultMixes,
	}

	fmt.Println("=== Hybrid Search Load Test ===")
	fmt.Printf("Target:       %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency:  %d\n", cfg.Concurrency)
	fmt.Printf("Duration:     %s\n", cfg.Duration)
	fmt.Printf("Queries:      %d unique\n", len(cfg.Queries))
	fmt.Printf("Weight mixes: %d, pages 1..%d\n\n", len(cfg.Mixes), cfg.MaxPage)

	rep := run(cfg)
	printReport(rep, cfg.Duration)
	if rep.Total == 0 {
		fmt.Println("\nWARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func run(cfg Config) Report {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	rec := &Recorder{}
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				mix := cfg.Mixes[i%len(cfg.Mixes)]
				target := buildSearchURL(cfg.BaseURL, cfg.Queries[i%len(cfg.Queries)], mix, i%cfg.MaxPage+1)
				s := searchOnce(ctx, client, target)
				if ctx.Err() != nil {
					// Requests cut off by the deadline are not samples.
					return nil
				}
				s.mix = mix.Name
				rec.add(s)
			}
			return nil
		})
	}
	_ = g.Wait()
	return rec.Report()
}

func searchOnce(ctx context.Context, client *http.Client, target string) sample {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return sample{err: err}
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return sample{latency: time.Since(start), err: err}
	}
	defer resp.Body.Close()

	var body struct {
		Pagination struct {
			TotalResults int `json:"total_results"`
		} `json:"pagination"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	_, _ = io.Copy(io.Discard, resp.Body)

	return sample{
		latency:    time.Since(start),
		status:     resp.StatusCode,
		zeroResult: decodeErr == nil && body.Pagination.TotalResults == 0,
	}
}

func buildSearchURL(base, query string, mix WeightMix, page int) string {
	params := url.Values{}
	params.Set("query", query)
	params.Set("alpha", strconv.FormatFloat(mix.Alpha, 'f', -1, 64))
	params.Set("beta", strconv.FormatFloat(mix.Beta, 'f', -1, 64))
	params.Set("gamma", strconv.FormatFloat(mix.Gamma, 'f', -1, 64))
	params.Set("page", strconv.Itoa(page))
	return base + "/search?" + params.Encode()
}

func printReport(rep Report, duration time.Duration) {
	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", rep.Total)
	fmt.Printf("Failed:          %d\n", rep.Failed)
	if rep.Total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(rep.Failed)/float64(rep.Total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(rep.Total)/duration.Seconds())
	}
	if ok := len(rep.Latencies); ok > 0 {
		fmt.Printf("Zero results:    %d (%.1f%%)\n", rep.ZeroResults, float64(rep.ZeroResults)/float64(ok)*100)

		fmt.Println("\n=== Latency ===")
		fmt.Printf("Min:    %s\n", rep.Latencies[0])
		fmt.Printf("Avg:    %s\n", mean(rep.Latencies))
		for _, p := range []float64{50, 90, 95, 99} {
			fmt.Printf("P%-5.0f %s\n", p, percentile(rep.Latencies, p))
		}
		fmt.Printf("Max:    %s\n", rep.Latencies[ok-1])
		fmt.Printf("StdDev: %s\n", stddev(rep.Latencies))
	}

	fmt.Println("\n=== Latency by weight mix (P50 / P95) ===")
	names := make([]string, 0, len(rep.ByMix))
	for name := range rep.ByMix {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		ls := rep.ByMix[name]
		fmt.Printf("  %-10s %s / %s (%d requests)\n", name, percentile(ls, 50), percentile(ls, 95), len(ls))
	}

	fmt.Println("\n=== Status Codes ===")
	codes := make([]int, 0, len(rep.StatusCodes))
	for code := range rep.StatusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, rep.StatusCodes[code])
	}
}

func mean(ls []time.Duration) time.Duration {
	if len(ls) == 0 {
		return 0
	}
	var sum time.Duration
	for _, l := range ls {
		sum += l
	}
	return sum / time.Duration(len(ls))
}

func stddev(ls []time.Duration) time.Duration {
	if len(ls) == 0 {
		return 0
	}
	avg := float64(mean(ls))
	var sq float64
	for _, l := range ls {
		d := float64(l) - avg
		sq += d * d
	}
	return time.Duration(math.Sqrt(sq / float64(len(ls))))
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = min(max(idx, 0), len(sorted)-1)
	return sorted[idx]
}
