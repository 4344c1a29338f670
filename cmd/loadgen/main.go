package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	h3 "github.com/uber/h3-go/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mohammed-shakir/zoning-relay/internal/cache/redisstore"
	"github.com/mohammed-shakir/zoning-relay/internal/invalidation"
)

const samplePolygon = `{"type":"Polygon","coordinates":[[[112.90,-7.19],[112.94,-7.19],[112.94,-7.16],[112.90,-7.16],[112.90,-7.19]]]}`

func getenv(key, def string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return def
}

func testRedis(ctx context.Context, addr string) error {
	fmt.Println("Redis test")
	client, err := redisstore.New(ctx, addr, redisstore.WithDialTimeout(2*time.Second))
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.Set(ctx, "zr:smoke", []byte("ok"), 30*time.Second); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	val, found, err := client.Get(ctx, "zr:smoke")
	if err != nil {
		return fmt.Errorf("redis get: %w", err)
	}
	fmt.Printf("redis GET zr:smoke: %s (found=%v)\n", val, found)
	if _, err := client.Del(ctx, "zr:smoke"); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func checkOnce(ctx context.Context, cli *http.Client, url, key string) (int, time.Duration, error) {
	body, _ := json.Marshal(map[string]json.RawMessage{"userPolygonGeoJSON": json.RawMessage(samplePolygon)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	start := time.Now()
	resp, err := cli.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("post check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, time.Since(start), nil
}

func testRelay(ctx context.Context, url, key string) error {
	fmt.Println("Relay test")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url,
		strings.NewReader(`{"userPolygonGeoJSON":`+samplePolygon+`}`))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Only read a small part of body (because it can be large)
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay status %d: %s", resp.StatusCode, string(b))
	}
	fmt.Println("relay sample:")
	fmt.Println(string(b))
	return nil
}

// runLoad fires n checks through a rate limiter with the given concurrency.
func runLoad(ctx context.Context, url, key string, n, concurrency int, rps float64) error {
	fmt.Printf("Load: %d checks, concurrency %d, %.1f rps\n", n, concurrency, rps)
	lim := rate.NewLimiter(rate.Limit(rps), concurrency)
	cli := &http.Client{Timeout: 60 * time.Second}

	var (
		mu        sync.Mutex
		latencies []time.Duration
		statuses  = map[int]int{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for range n {
		if err := lim.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			code, dur, err := checkOnce(gctx, cli, url, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				statuses[0]++
				return nil
			}
			statuses[code]++
			latencies = append(latencies, dur)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load: %w", err)
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	fmt.Println("status counts (0 = transport error):", statuses)
	if len(latencies) > 0 {
		p := func(q float64) time.Duration { return latencies[int(q*float64(len(latencies)-1))] }
		fmt.Printf("latency p50=%s p95=%s max=%s\n", p(0.5), p(0.95), latencies[len(latencies)-1])
	}
	return nil
}

func testKafka(brokers []string, topic string) error {
	fmt.Println("Kafka test")

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Version = sarama.V3_6_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	ev := invalidation.Event{
		Version:  1,
		Op:       invalidation.OpUpdate,
		Layer:    "zonasi",
		TS:       time.Now().UTC(),
		Source:   "loadgen",
		Geometry: json.RawMessage(samplePolygon),
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("sample event: %w", err)
	}
	msgBytes, _ := json.Marshal(ev)
	part, off, err := prod.SendMessage(&sarama.ProducerMessage{
		Topic: topic, Key: sarama.StringEncoder(ev.Layer), Value: sarama.ByteEncoder(msgBytes),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Printf("produced zoning change event (partition %d, offset %d)\n", part, off)
	return nil
}

func demoH3() error {
	fmt.Println("H3 demo")
	cell, err := h3.LatLngToCell(h3.NewLatLng(-7.1754, 112.9234), 8)
	if err != nil {
		return fmt.Errorf("h3 cell: %w", err)
	}
	neighbors, err := h3.GridDisk(cell, 1)
	if err != nil {
		return fmt.Errorf("h3 grid disk: %w", err)
	}
	fmt.Printf("H3 center: %s, neighbors: %d\n", cell.String(), len(neighbors))
	return nil
}

func main() {
	n := flag.Int("n", 0, "number of load checks to send after the smoke tests (0 = none)")
	concurrency := flag.Int("c", 8, "load concurrency")
	rps := flag.Float64("rps", 20, "load rate limit")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	redisAddr := getenv("REDIS_ADDR", "localhost:6379")
	relayURL := getenv("RELAY_URL", "http://localhost:8090/check")
	key := os.Getenv("SUPABASE_ANON_KEY")
	brokers := strings.Split(getenv("KAFKA_BROKERS", "localhost:9092"), ",")
	topic := getenv("KAFKA_TOPIC", "zoning-changes")

	if err := testRedis(ctx, redisAddr); err != nil {
		fmt.Println("Redis error:", err)
		return
	}
	if err := testRelay(ctx, relayURL, key); err != nil {
		fmt.Println("Relay error:", err)
		return
	}
	if err := testKafka(brokers, topic); err != nil {
		fmt.Println("Kafka error:", err)
		return
	}
	if err := demoH3(); err != nil {
		fmt.Println("H3 error:", err)
		return
	}
	if *n > 0 {
		if err := runLoad(ctx, relayURL, key, *n, *concurrency, *rps); err != nil {
			fmt.Println("Load error:", err)
			return
		}
	}
	fmt.Println("All tests completed")
}
