// Command replay-signals runs the violation pipeline over a JSONL file of
// frame signals and prints the resulting gesture report. Useful for offline
// tuning without the HTTP server.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/attention.report/internal/config"
	"github.com/banshee-data/attention.report/internal/db"
	"github.com/banshee-data/attention.report/internal/vision"
)

func main() {
	var signalsPath string
	var tuningPath string
	var dbPath string
	var sessionID string

	flag.StringVar(&signalsPath, "signals", "", "path to JSONL file of frame signals")
	flag.StringVar(&tuningPath, "tuning", "", "path to tuning config JSON (defaults when empty)")
	flag.StringVar(&dbPath, "db", "", "optional sqlite db to persist the report into")
	flag.StringVar(&sessionID, "session", "replay", "session id used when persisting")
	flag.Parse()

	if signalsPath == "" {
		log.Fatal("usage: replay-signals -signals <file.jsonl> [-tuning cfg.json] [-db reports.db]")
	}

	pipelineCfg := vision.DefaultPipelineConfig()
	if tuningPath != "" {
		tuning, err := config.LoadTuningConfig(tuningPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		pipelineCfg = vision.PipelineConfigFromTuning(tuning)
	}

	file, err := os.Open(signalsPath)
	if err != nil {
		log.Fatalf("failed to open signals file: %v", err)
	}
	defer file.Close()

	pipeline := vision.NewPipeline(pipelineCfg)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var sig vision.FrameSignal
		if err := json.Unmarshal(line, &sig); err != nil {
			log.Fatalf("line %d: failed to parse signal: %v", lineNo, err)
		}
		if err := pipeline.ProcessSignal(sig); err != nil {
			log.Fatalf("line %d: %v", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("failed reading signals file: %v", err)
	}

	report := pipeline.Finalize()

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal report: %v", err)
	}
	fmt.Println(string(out))

	if dbPath != "" {
		database, err := db.NewDB(dbPath)
		if err != nil {
			log.Fatalf("failed to open db: %v", err)
		}
		defer database.Close()

		store := vision.NewReportStore(database.DB)
		if err := store.SaveReport(sessionID, report, pipeline.Events()); err != nil {
			log.Fatalf("failed to persist report: %v", err)
		}
		fmt.Printf("report persisted as session %q in %s\n", sessionID, dbPath)
	}
}
