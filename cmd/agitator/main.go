// Package main is a load generator for the observer WebSocket.
// It opens many concurrent observers that read state frames and send edit commands.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inocsim/server/internal/network"
	"github.com/inocsim/server/internal/platform/logger"
)

// Config for the agitator.
type Config struct {
	ServerURL      string
	NumClients     int
	ActionInterval time.Duration
	TestDuration   time.Duration
	ReadOnly       bool
	OutputPath     string
}

// Stats tracks what the observers saw.
type Stats struct {
	MessagesSent     int64
	MessagesReceived int64
	StateFrames      int64
	Acks             int64
	Rejections       int64
	Errors           int64
	Latencies        []time.Duration
	mu               sync.Mutex
}

// paramRanges keeps generated edits mostly valid; probabilities occasionally
// overshoot so the server's rejection path is exercised too.
var paramRanges = map[string][2]float64{
	"incidence_rate":        {0, 0.5},
	"prob_acute":            {0, 1.1},
	"prob_acute_to_chronic": {0, 1},
	"prob_treatment":        {0, 1},
	"liver_stage_days":      {1, 14},
	"prophylaxis_days":      {0, 30},
}

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	numClients := flag.Int("clients", 50, "Number of concurrent observers")
	interval := flag.Duration("interval", 100*time.Millisecond, "Command interval per observer")
	duration := flag.Duration("duration", 60*time.Second, "Test duration")
	readOnly := flag.Bool("read-only", false, "Only read state frames, never send commands")
	output := flag.String("out", "stress_test_results.json", "Where to write the JSON results")
	flag.Parse()

	config := Config{
		ServerURL:      *serverURL,
		NumClients:     *numClients,
		ActionInterval: *interval,
		TestDuration:   *duration,
		ReadOnly:       *readOnly,
		OutputPath:     *output,
	}

	log := logger.NewLogger().With("component", "agitator")
	log.Info("starting load test",
		"url", config.ServerURL, "clients", config.NumClients,
		"interval", config.ActionInterval, "duration", config.TestDuration, "read_only", config.ReadOnly)

	ctx, cancel := context.WithTimeout(context.Background(), config.TestDuration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		select {
		case <-sigChan:
			log.Warn("interrupt received, stopping")
			cancel()
		case <-ctx.Done():
		}
	}()

	stats := runStressTest(ctx, config, log)
	printResults(stats, config, log)
}

func runStressTest(ctx context.Context, config Config, log *logger.Logger) *Stats {
	stats := &Stats{Latencies: make([]time.Duration, 0, 10000)}

	var wg sync.WaitGroup
	for i := 0; i < config.NumClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			runClient(ctx, clientID, config, stats, log)
		}(i)

		// Stagger connects to avoid a thundering herd on the upgrader.
		time.Sleep(10 * time.Millisecond)
	}
	log.Info("all observers started", "clients", config.NumClients)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Info("progress",
					"sent", atomic.LoadInt64(&stats.MessagesSent),
					"received", atomic.LoadInt64(&stats.MessagesReceived),
					"errors", atomic.LoadInt64(&stats.Errors))
			}
		}
	}()

	wg.Wait()
	return stats
}

func runClient(ctx context.Context, clientID int, config Config, stats *Stats, log *logger.Logger) {
	u, err := url.Parse(config.ServerURL)
	if err != nil {
		log.Error("url parse error", "client", clientID, "err", err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		log.Warn("connection failed", "client", clientID, "err", err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		for {
			var msg network.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			atomic.AddInt64(&stats.MessagesReceived, 1)
			switch msg.Type {
			case network.MsgTypeState:
				atomic.AddInt64(&stats.StateFrames, 1)
			case network.MsgTypeAck:
				atomic.AddInt64(&stats.Acks, 1)
			case network.MsgTypeError:
				atomic.AddInt64(&stats.Rejections, 1)
			}
		}
	}()

	if config.ReadOnly {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(config.ActionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := conn.WriteJSON(generateCommand()); err != nil {
				if ctx.Err() == nil {
					atomic.AddInt64(&stats.Errors, 1)
				}
				return
			}

			atomic.AddInt64(&stats.MessagesSent, 1)
			stats.mu.Lock()
			stats.Latencies = append(stats.Latencies, time.Since(start))
			stats.mu.Unlock()
		}
	}
}

func generateCommand() network.Command {
	switch n := rand.IntN(10); {
	case n < 6:
		names := make([]string, 0, len(paramRanges))
		for name := range paramRanges {
			names = append(names, name)
		}
		name := names[rand.IntN(len(names))]
		r := paramRanges[name]
		v := r[0] + rand.Float64()*(r[1]-r[0])
		return network.Command{Type: network.CmdSetParam, Name: name, Value: &v}
	case n < 8:
		v := 0.5 + rand.Float64()*4
		return network.Command{Type: network.CmdSetSpeed, Value: &v}
	default:
		return network.Command{Type: network.CmdGetState}
	}
}

func printResults(stats *Stats, config Config, log *logger.Logger) {
	sent := atomic.LoadInt64(&stats.MessagesSent)
	recv := atomic.LoadInt64(&stats.MessagesReceived)
	errs := atomic.LoadInt64(&stats.Errors)
	throughput := float64(sent) / config.TestDuration.Seconds()

	fmt.Println("\n=========================================")
	fmt.Println("LOAD TEST RESULTS")
	fmt.Println("=========================================")
	fmt.Printf("Commands Sent:     %d\n", sent)
	fmt.Printf("Messages Received: %d\n", recv)
	fmt.Printf("  State frames:    %d\n", atomic.LoadInt64(&stats.StateFrames))
	fmt.Printf("  Acks:            %d\n", atomic.LoadInt64(&stats.Acks))
	fmt.Printf("  Rejections:      %d\n", atomic.LoadInt64(&stats.Rejections))
	fmt.Printf("Errors:            %d\n", errs)
	fmt.Printf("Throughput:        %.2f cmd/sec\n", throughput)

	stats.mu.Lock()
	latencies := stats.Latencies
	stats.mu.Unlock()
	if len(latencies) > 0 {
		var total time.Duration
		lo, hi := latencies[0], latencies[0]
		for _, l := range latencies {
			total += l
			lo = min(lo, l)
			hi = max(hi, l)
		}
		fmt.Printf("\nWrite latency:\n  Min: %v\n  Avg: %v\n  Max: %v\n", lo, total/time.Duration(len(latencies)), hi)
	}

	fmt.Println("\n-----------------------------------------")
	switch {
	case errs == 0 && recv > 0:
		fmt.Println("PASSED: server handled the load")
	case float64(errs)/float64(config.NumClients) < 0.05:
		fmt.Println("WARNING: some observers failed")
	default:
		fmt.Println("FAILED: high error rate")
	}

	results := map[string]interface{}{
		"messages_sent":      sent,
		"messages_received":  recv,
		"state_frames":       atomic.LoadInt64(&stats.StateFrames),
		"acks":               atomic.LoadInt64(&stats.Acks),
		"rejections":         atomic.LoadInt64(&stats.Rejections),
		"errors":             errs,
		"throughput_per_sec": throughput,
		"config": map[string]interface{}{
			"clients":   config.NumClients,
			"interval":  config.ActionInterval.String(),
			"duration":  config.TestDuration.String(),
			"read_only": config.ReadOnly,
		},
	}
	jsonData, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile(config.OutputPath, jsonData, 0o644); err != nil {
		log.Error("failed to write results", "path", config.OutputPath, "err", err)
		return
	}
	log.Info("results saved", "path", config.OutputPath)
}
