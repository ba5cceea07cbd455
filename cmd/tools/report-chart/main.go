// Command report-chart renders a persisted proctoring report as an HTML
// chart page: event counts and total deviation time per gesture group.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/attention.report/internal/db"
	"github.com/banshee-data/attention.report/internal/vision"
)

func main() {
	var dbPath string
	var sessionID string
	var outPath string

	flag.StringVar(&dbPath, "db", "reports.db", "path to sqlite db")
	flag.StringVar(&sessionID, "session", "", "session id of the report to chart")
	flag.StringVar(&outPath, "out", "report.html", "output HTML file")
	flag.Parse()

	if sessionID == "" {
		log.Fatal("usage: report-chart -session <id> [-db reports.db] [-out report.html]")
	}

	database, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer database.Close()

	store := vision.NewReportStore(database.DB)
	stored, err := store.GetReport(sessionID)
	if err != nil {
		log.Fatalf("failed to load report for session %s: %v", sessionID, err)
	}

	names := make([]string, 0, len(stored.Report.Gestures))
	counts := make([]opts.BarData, 0, len(stored.Report.Gestures))
	durations := make([]opts.BarData, 0, len(stored.Report.Gestures))
	for _, group := range stored.Report.Gestures {
		var total float64
		for _, occ := range group.Occurrences {
			total += occ.Duration
		}
		names = append(names, group.Name)
		counts = append(counts, opts.BarData{Value: len(group.Occurrences)})
		durations = append(durations, opts.BarData{Value: total})
	}

	countBar := charts.NewBar()
	countBar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Violation events by gesture group",
			Subtitle: fmt.Sprintf("session %s", sessionID),
		}),
	)
	countBar.SetXAxis(names).AddSeries("events", counts)

	durationBar := charts.NewBar()
	durationBar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Total deviation time by gesture group (seconds)",
			Subtitle: fmt.Sprintf("session %s", sessionID),
		}),
	)
	durationBar.SetXAxis(names).AddSeries("seconds", durations)

	page := components.NewPage()
	page.AddCharts(countBar, durationBar)

	f, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		log.Fatalf("failed to render charts: %v", err)
	}
	fmt.Printf("wrote %s\n", outPath)
}
