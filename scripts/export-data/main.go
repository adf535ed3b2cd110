package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	"otp-predictor/internal/storage"
)

func main() {
	var (
		dataPath   = flag.String("data", "data", "Data directory holding otp-data.db")
		outputPath = flag.String("output", "-", "Output file (newline-delimited JSON, \"-\" for stdout)")
		what       = flag.String("what", "predictions", "What to export: predictions, records")
		route      = flag.String("route", "", "Route to export (records only, empty for all)")
		days       = flag.Int("days", 30, "Number of days to export (predictions only, 0 for all)")
	)
	flag.Parse()

	store, err := storage.OpenReadOnly(*dataPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	var out io.Writer = os.Stdout
	if *outputPath != "-" {
		f, err := os.Create(*outputPath)
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		out = f
	}
	encoder := json.NewEncoder(out)

	switch *what {
	case "predictions":
		start := time.Unix(0, 0)
		if *days > 0 {
			start = time.Now().AddDate(0, 0, -*days)
		}
		events, err := store.GetPredictions(start, time.Now())
		if err != nil {
			log.Fatalf("Failed to read predictions: %v", err)
		}

		failed := 0
		bySource := make(map[string]int)
		for _, ev := range events {
			if err := encoder.Encode(ev); err != nil {
				log.Fatalf("Failed to write JSON record: %v", err)
			}
			bySource[ev.Source]++
			if ev.Error != "" {
				failed++
			}
		}

		log.Printf("Exported %d predictions (%d failed) from %s", len(events), failed, store.Path())
		for _, src := range sortedKeys(bySource) {
			log.Printf("  %s: %d", src, bySource[src])
		}

	case "records":
		records, err := store.GetRecords(*route)
		if err != nil {
			log.Fatalf("Failed to read records: %v", err)
		}

		byRoute := make(map[string]int)
		for _, r := range records {
			if err := encoder.Encode(r); err != nil {
				log.Fatalf("Failed to write JSON record: %v", err)
			}
			byRoute[r.Route]++
		}

		log.Printf("Exported %d records across %d routes from %s", len(records), len(byRoute), store.Path())

	default:
		fmt.Fprintf(os.Stderr, "unknown export %q\n", *what)
		os.Exit(2)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
