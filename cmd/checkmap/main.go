// Command checkmap checks a polygon against the zoning relay from the terminal
// and prints the result panel.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohammed-shakir/zoning-relay/internal/client"
	"github.com/mohammed-shakir/zoning-relay/internal/core/httpclient"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	os.Exit(run())
}

func run() int {
	relayURL := flag.String("relay", getenv("RELAY_URL", "http://localhost:8090/check"), "relay check endpoint")
	key := flag.String("key", os.Getenv("SUPABASE_ANON_KEY"), "access key sent as apikey/bearer")
	field := flag.String("field", getenv("POLYGON_FIELD", "userPolygonGeoJSON"), "request body field")
	polygonFile := flag.String("polygon", "", "GeoJSON Polygon/MultiPolygon or Feature file (- for stdin)")
	overlaysOut := flag.String("overlays", "", "write result overlays as a GeoJSON FeatureCollection to this file")
	timeout := flag.Duration("timeout", 60*time.Second, "request timeout")
	flag.Parse()

	notify := client.NotifierFunc(func(msg string) { fmt.Fprintln(os.Stderr, msg) })
	sess := client.NewSession(&client.HTTPRelay{
		URL:    *relayURL,
		Field:  *field,
		Key:    *key,
		Client: httpclient.NewOutbound(*timeout),
	}, notify)

	if *polygonFile != "" {
		raw, err := readInput(*polygonFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read polygon:", err)
			return 1
		}
		if err := sess.Draw(client.ShapePolygon, raw); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := sess.Check(ctx); err != nil {
		// the session has already told the user
		if errors.Is(err, client.ErrNoPolygon) {
			return 2
		}
		return 1
	}

	if err := sess.RenderPanel(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "render:", err)
		return 1
	}

	if *overlaysOut != "" {
		fc, err := sess.Overlays()
		if err != nil {
			fmt.Fprintln(os.Stderr, "overlays:", err)
			return 1
		}
		b, err := json.MarshalIndent(fc, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "overlays:", err)
			return 1
		}
		if err := os.WriteFile(*overlaysOut, b, 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "write overlays:", err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "overlays written to %s (base layer %s)\n", *overlaysOut, client.DefaultBaseLayer.TileURL)
	}
	return 0
}

func readInput(name string) ([]byte, error) {
	if strings.TrimSpace(name) == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return b, nil
}
