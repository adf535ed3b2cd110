package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"otp-predictor/internal/corpus"
	"otp-predictor/internal/features"

	"github.com/xuri/excelize/v2"
)

type route struct {
	from, to string
}

var routes = []route{
	{"Adelaide", "Brisbane"},
	{"Adelaide", "Melbourne"},
	{"Adelaide", "Sydney"},
	{"Brisbane", "Cairns"},
	{"Brisbane", "Melbourne"},
	{"Brisbane", "Sydney"},
	{"Canberra", "Sydney"},
	{"Melbourne", "Hobart"},
	{"Melbourne", "Perth"},
	{"Melbourne", "Sydney"},
	{"Perth", "Sydney"},
	{"Gold Coast", "Sydney"},
}

var airlines = []struct {
	name string
	bias float64 // on-time offset in percentage points
}{
	{"Qantas", 3},
	{"Virgin Australia", 0},
	{"Jetstar", -5},
	{"Rex", 2},
}

func main() {
	var (
		outPath   = flag.String("out", "OTP_Time_Series_Master.xlsx", "Output workbook path")
		sheet     = flag.String("sheet", "", "Worksheet name (default: OTP)")
		startYear = flag.Int("start-year", 2015, "First year to generate")
		years     = flag.Int("years", 5, "Number of years to generate")
		naRate    = flag.Float64("na-rate", 0.01, "Fraction of rows with an \"na\" counter")
		seed      = flag.Int64("seed", 42, "Random seed")
	)
	flag.Parse()

	fmt.Printf("Generating sample OTP corpus...\n")
	fmt.Printf("  Years: %d-%d\n", *startYear, *startYear+*years-1)
	fmt.Printf("  Routes: %d (both directions)\n", len(routes))
	fmt.Printf("  Output: %s\n", *outPath)

	rng := rand.New(rand.NewSource(*seed))
	records := generateRecords(rng, *startYear, *years)

	if err := corpus.WriteCorpus(*outPath, *sheet, records); err != nil {
		log.Fatalf("Failed to write corpus: %v", err)
	}

	blanked, err := blankCells(rng, *outPath, *sheet, len(records), *naRate)
	if err != nil {
		log.Fatalf("Failed to mark missing values: %v", err)
	}

	fmt.Printf("✓ Generated %d records (%d with \"na\" values)\n", len(records), blanked)
}

func generateRecords(rng *rand.Rand, startYear, years int) []features.HistoricalRecord {
	var out []features.HistoricalRecord
	for y := 0; y < years; y++ {
		for m := time.January; m <= time.December; m++ {
			month := time.Date(startYear+y, m, 1, 0, 0, 0, 0, time.UTC)
			// Winter and holiday months run later.
			seasonal := -4 * math.Cos(2*math.Pi*float64(m-1)/12)

			for _, r := range routes {
				for _, dir := range []route{r, {r.to, r.from}} {
					for _, a := range airlines {
						if rng.Float64() < 0.25 {
							continue // not every airline flies every route every month
						}
						out = append(out, record(rng, dir, a.name, a.bias+seasonal, month))
					}
				}
			}
		}
	}
	return out
}

func record(rng *rand.Rand, r route, airline string, bias float64, month time.Time) features.HistoricalRecord {
	scheduled := float64(30 + rng.Intn(400))
	cancellations := math.Floor(scheduled * rng.Float64() * 0.04)
	flown := scheduled - cancellations

	depPct := clamp(78+bias+rng.NormFloat64()*6, 40, 99)
	depOnTime := math.Round(flown * depPct / 100)
	arrPct := clamp(depPct-1.5+rng.NormFloat64()*2.5, 35, 99)
	arrOnTime := math.Round(flown * arrPct / 100)

	return features.HistoricalRecord{
		Route:               r.from + "-" + r.to,
		DepartingPort:       r.from,
		ArrivingPort:        r.to,
		Airline:             airline,
		Month:               month,
		SectorsScheduled:    scheduled,
		SectorsFlown:        flown,
		Cancellations:       cancellations,
		DeparturesOnTime:    depOnTime,
		ArrivalsOnTime:      arrOnTime,
		DeparturesDelayed:   flown - depOnTime,
		ArrivalsDelayed:     flown - arrOnTime,
		OnTimeDeparturesPct: round1(100 * depOnTime / flown),
		CancellationsPct:    round1(100 * cancellations / scheduled),
		OnTimeArrivalsPct:   round1(100 * arrOnTime / flown),
	}
}

// blankCells overwrites one counter of a random sample of rows with "na",
// the way the published spreadsheet marks unreported values.
func blankCells(rng *rand.Rand, path, sheet string, rows int, rate float64) (int, error) {
	if rate <= 0 {
		return 0, nil
	}
	if sheet == "" {
		sheet = corpus.DefaultSheet
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	// Counter columns follow the four categoricals and the month.
	firstCounter := features.NumCategorical + 2
	blanked := 0
	for row := 2; row <= rows+1; row++ {
		if rng.Float64() >= rate {
			continue
		}
		col := firstCounter + rng.Intn(features.NumCounters)
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return blanked, err
		}
		if err := f.SetCellValue(sheet, cell, "na"); err != nil {
			return blanked, err
		}
		blanked++
	}

	if err := f.Save(); err != nil {
		return blanked, err
	}
	return blanked, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
