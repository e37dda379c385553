package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	vegeta "github.com/tsenart/vegeta/v12/lib"
)

const (
	primaryPort = 9091
	backupPort  = 9092
	appPort     = 8081
	apiKey      = "bench-key-12345"
)

var (
	streamChunks = [][]byte{
		[]byte(`data: {"choices":[{"delta":{"content":"Bench"}}]}` + "\n\n"),
		[]byte(`data: {"choices":[{"delta":{"content":"mark"}}]}` + "\n\n"),
		[]byte(`data: {"choices":[{"delta":{"content":" response"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":3,"total_tokens":6}}` + "\n\n"),
	}
	streamDone = []byte("data: [DONE]\n\n")
	unaryResp  = []byte(`{"id":"bench-123","object":"chat.completion","choices":[{"message":{"role":"assistant","content":"Hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
)

func main() {
	duration := flag.Duration("duration", 10*time.Second, "Duration of the test")
	rate := flag.Int("rate", 50, "Requests per second")
	stream := flag.Bool("stream", false, "Use streaming requests")
	failRate := flag.Float64("fail-rate", 0.2, "Fraction of primary upstream requests answered with 503")
	latency := flag.Duration("latency", 10*time.Millisecond, "Simulated upstream latency")
	chaos := flag.Bool("chaos", false, "Simulate random client disconnections")
	flag.Parse()

	go startMockUpstream(primaryPort, *failRate, *latency)
	go startMockUpstream(backupPort, 0, *latency*3)

	fmt.Println("Building application...")
	buildCmd := exec.Command("go", "build", "-o", "bin/server", "./cmd/server")
	buildCmd.Stdout = os.Stdout
	buildCmd.Stderr = os.Stderr
	if err := buildCmd.Run(); err != nil {
		log.Fatalf("Failed to build app: %v", err)
	}

	configFile := "bench_config.yaml"
	if err := os.WriteFile(configFile, []byte(benchConfig), 0o644); err != nil {
		log.Fatalf("Failed to write config: %v", err)
	}
	defer os.Remove(configFile)

	fmt.Println("Starting application...")
	cmd := exec.Command("./bin/server")
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("CONFIG_FILE=%s", configFile),
		fmt.Sprintf("SERVER_PORT=%d", appPort),
		"LOG_LEVEL=error",
	)

	logFile, _ := os.Create("bench_server.log")
	defer logFile.Close()
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		log.Fatalf("Failed to start app: %v", err)
	}
	defer func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}()

	waitForApp(fmt.Sprintf("http://localhost:%d/health", appPort))

	done := make(chan struct{})
	go monitorCPU(cmd.Process.Pid, done)

	mode := "Unary"
	if *stream {
		mode = "Streaming"
	}
	fmt.Printf("Running %s benchmark: %s duration, %d req/s, primary fail rate %.0f%%\n", mode, *duration, *rate, *failRate*100)

	chatURL := fmt.Sprintf("http://localhost:%d/v1/chat/completions", appPort)
	body := fmt.Sprintf(`{"model": "gpt-3.5-turbo", "stream": %t, "messages": [{"role": "user", "content": "Hello"}]}`, *stream)

	targeter := func(t *vegeta.Target) error {
		t.Method = http.MethodPost
		t.URL = chatURL
		t.Body = []byte(body)
		t.Header = http.Header{
			"Content-Type":  []string{"application/json"},
			"Authorization": []string{"Bearer " + apiKey},
		}
		return nil
	}

	if *chaos {
		fmt.Println("CHAOS MODE ENABLED: random client disconnects")
		go startChaosMonkey(chatURL, clamp(*rate/10, 5, 50), done)
	}

	attacker := vegeta.NewAttacker(vegeta.KeepAlive(true))
	var metrics vegeta.Metrics
	servedBy := make(map[string]int)

	for res := range attacker.Attack(targeter, vegeta.Rate{Freq: *rate, Per: time.Second}, *duration, "Benchmark") {
		metrics.Add(res)
		if res.Code == http.StatusOK && !*stream {
			servedBy[res.Headers.Get("X-Provider")]++
		}
	}
	metrics.Close()
	close(done)

	fmt.Println("--------------------------------------------------")
	fmt.Println("99th percentile: ", metrics.Latencies.P99)
	fmt.Println("Mean:            ", metrics.Latencies.Mean)
	fmt.Println("Max:             ", metrics.Latencies.Max)
	fmt.Printf("Success:         %.2f%%\n", metrics.Success*100)
	fmt.Printf("Throughput:      %.2f req/s\n", metrics.Throughput)
	fmt.Println("--------------------------------------------------")

	if len(servedBy) > 0 {
		fmt.Println("Served by:")
		ids := make([]string, 0, len(servedBy))
		for id := range servedBy {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Printf("  %-10s %d\n", id, servedBy[id])
		}
	}

	printProviderStatus()

	if len(metrics.Errors) > 0 {
		fmt.Println("Error Set (first 5 unique):")
		seen := make(map[string]bool)
		for _, msg := range metrics.Errors {
			if !seen[msg] && len(seen) < 5 {
				fmt.Println(msg)
				seen[msg] = true
			}
		}
	}

	os.Remove("bench.db")
}

// printProviderStatus shows how the curator judged each upstream.
func printProviderStatus() {
	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("http://localhost:%d/v1/providers", appPort), nil)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("could not fetch provider status: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var body struct {
		Current string `json:"current"`
		Data    []struct {
			ID          string `json:"id"`
			State       string `json:"state"`
			Reliability string `json:"reliability"`
			ShouldAvoid bool   `json:"should_avoid"`
			Quality     *struct {
				Overall float64 `json:"overall"`
			} `json:"quality"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return
	}

	fmt.Printf("Current provider: %s\n", body.Current)
	fmt.Printf("%-10s %-12s %-12s %-8s %s\n", "Provider", "State", "Reliability", "Avoid", "Quality")
	for _, p := range body.Data {
		quality := "-"
		if p.Quality != nil {
			quality = strconv.FormatFloat(p.Quality.Overall, 'f', 3, 64)
		}
		fmt.Printf("%-10s %-12s %-12s %-8t %s\n", p.ID, p.State, p.Reliability, p.ShouldAvoid, quality)
	}
}

func startChaosMonkey(url string, concurrency int, done chan struct{}) {
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			client := &http.Client{}
			payload := `{"model": "gpt-3.5-turbo", "stream": true, "messages": [{"role": "user", "content": "Chaos Request"}]}`

			for {
				select {
				case <-done:
					return
				default:
					timeout := time.Duration(rand.Intn(200)+1) * time.Millisecond
					ctx, cancel := context.WithTimeout(context.Background(), timeout)
					req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(payload))
					req.Header.Set("Content-Type", "application/json")
					req.Header.Set("Authorization", "Bearer "+apiKey)

					resp, err := client.Do(req)
					if err == nil {
						resp.Body.Close()
					}
					cancel()
					time.Sleep(time.Duration(rand.Intn(50)) * time.Millisecond)
				}
			}
		}()
	}
	wg.Wait()
}

// startMockUpstream serves an OpenAI-compatible API that fails failRate of
// chat requests with a 503.
func startMockUpstream(port int, failRate float64, latency time.Duration) {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"gpt-3.5-turbo","object":"model","created":1687882411,"owned_by":"openai"}]}`))
	})

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)

		time.Sleep(latency)
		if rand.Float64() < failRate {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream overloaded"}}`))
			return
		}

		if val, ok := req["stream"].(bool); ok && val {
			w.Header().Set("Content-Type", "text/event-stream")
			flusher, _ := w.(http.Flusher)
			for _, chunk := range streamChunks {
				time.Sleep(latency)
				_, _ = w.Write(chunk)
				flusher.Flush()
			}
			_, _ = w.Write(streamDone)
			flusher.Flush()
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(unaryResp)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	_ = http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}

func monitorCPU(pid int, done chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	fmt.Printf("%-10s %-10s\n", "Time", "CPU(%)")
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "%cpu").Output()
			if err != nil {
				continue
			}
			lines := strings.Split(strings.TrimSpace(string(out)), "\n")
			if len(lines) < 2 {
				continue
			}
			cpu, _ := strconv.ParseFloat(strings.TrimSpace(lines[1]), 64)
			fmt.Printf("%-10s %-10.2f\n", time.Now().Format("15:04:05"), cpu)
		}
	}
}

func waitForApp(url string) {
	for i := 0; i < 20; i++ {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	log.Fatal("App timed out")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var benchConfig = fmt.Sprintf(`
server:
  port: "%d"
  env: production
  api_keys: ["%s"]
rate_limit:
  requests_per_second: 100000
  burst: 100000
database:
  enabled: true
  dsn: "file:bench.db?cache=shared&mode=rwc&_journal_mode=WAL&_busy_timeout=5000"
curation:
  enabled: true
  auto_switch: false
  max_consecutive_failures: 5
retry:
  max_attempts: 2
  initial_delay: 20ms
providers:
  - id: primary
    type: openai
    name: Primary
    api_key: "mock-key"
    base_url: "http://localhost:%d/v1"
    enabled: true
    default: true
  - id: backup
    type: openai
    name: Backup
    api_key: "mock-key"
    base_url: "http://localhost:%d/v1"
    enabled: true
`, appPort, apiKey, primaryPort, backupPort)
