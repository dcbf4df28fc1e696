// Command generate_bank_dataset writes a synthetic raw bank-marketing file
// for local runs of the pipeline.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/ahrav/go-bankprep/internal/testutils"
)

func main() {
	var (
		size       = flag.Int("size", 1000, "Number of rows to generate")
		seed       = flag.Int64("seed", 0, "Random seed (current time when zero)")
		outputPath = flag.String("output", "testdata/bank/synthetic_bank.csv", "Output file path")
	)
	flag.Parse()

	if *size <= 0 {
		log.Fatalf("size must be positive, got %d", *size)
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	records := testutils.GenerateBankRecords(*size, *seed)
	if err := testutils.SaveBankDataset(*outputPath, records); err != nil {
		log.Fatalf("Failed to save dataset: %v", err)
	}

	subscribed := 0
	for _, r := range records {
		if r.Fields["y"] == "yes" {
			subscribed++
		}
	}

	fmt.Printf("Generated bank dataset:\n")
	fmt.Printf("- Path: %s\n", *outputPath)
	fmt.Printf("- Rows: %d\n", len(records))
	fmt.Printf("- Seed: %d\n", *seed)
	fmt.Printf("- Subscribed (y=yes): %d (%.1f%%)\n", subscribed, 100*float64(subscribed)/float64(len(records)))
}
