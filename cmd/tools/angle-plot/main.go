// Command angle-plot reads a JSONL file of raw gaze frames and plots the
// raw arcsine-derived angle against the smoothed pipeline output, per axis.
// Handy for eyeballing filter lag when tuning the Kalman noise constants.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"log"
	"math"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/attention.report/internal/config"
	"github.com/banshee-data/attention.report/internal/vision"
)

type rawGazeFrame struct {
	Timestamp       float64  `json:"timestamp"`
	HorizontalRatio *float64 `json:"horizontal_ratio"`
	VerticalRatio   *float64 `json:"vertical_ratio"`
}

func main() {
	var framesPath string
	var tuningPath string
	var outPath string
	var axis string

	flag.StringVar(&framesPath, "frames", "", "path to JSONL file of raw gaze frames")
	flag.StringVar(&tuningPath, "tuning", "", "path to tuning config JSON (defaults when empty)")
	flag.StringVar(&outPath, "out", "angles.png", "output image file")
	flag.StringVar(&axis, "axis", "horizontal", "axis to plot: horizontal or vertical")
	flag.Parse()

	if framesPath == "" {
		log.Fatal("usage: angle-plot -frames <file.jsonl> [-axis horizontal|vertical] [-out angles.png]")
	}
	if axis != "horizontal" && axis != "vertical" {
		log.Fatalf("unknown axis %q", axis)
	}

	smootherCfg := vision.DefaultSmootherConfig()
	if tuningPath != "" {
		tuning, err := config.LoadTuningConfig(tuningPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		smootherCfg = vision.SmootherConfigFromTuning(tuning)
	}

	file, err := os.Open(framesPath)
	if err != nil {
		log.Fatalf("failed to open frames file: %v", err)
	}
	defer file.Close()

	smoother := vision.NewGazeSmoother(smootherCfg)

	var rawPts, smoothPts plotter.XYs
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var frame rawGazeFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			log.Fatalf("line %d: failed to parse frame: %v", lineNo, err)
		}
		if frame.HorizontalRatio == nil || frame.VerticalRatio == nil {
			// No reliable reading this frame; the smoother never sees it.
			continue
		}

		smoothH, smoothV := smoother.Smooth(*frame.HorizontalRatio, *frame.VerticalRatio)

		ratio := *frame.HorizontalRatio
		smoothed := smoothH
		if axis == "vertical" {
			ratio = *frame.VerticalRatio
			smoothed = smoothV
		}
		raw := math.Asin(clampRatio(ratio)*vision.GazeRangeCompression) * (180.0 / math.Pi)

		rawPts = append(rawPts, plotter.XY{X: frame.Timestamp, Y: raw})
		smoothPts = append(smoothPts, plotter.XY{X: frame.Timestamp, Y: smoothed})
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("failed reading frames file: %v", err)
	}
	if len(rawPts) == 0 {
		log.Fatal("no usable gaze frames in input")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Gaze angle (%s axis): raw vs smoothed", axis)
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "angle (degrees)"

	rawLine, err := plotter.NewLine(rawPts)
	if err != nil {
		log.Fatalf("failed to build raw line: %v", err)
	}
	rawLine.Color = color.RGBA{R: 200, G: 60, B: 60, A: 255}

	smoothLine, err := plotter.NewLine(smoothPts)
	if err != nil {
		log.Fatalf("failed to build smoothed line: %v", err)
	}
	smoothLine.Color = color.RGBA{R: 50, G: 100, B: 200, A: 255}

	p.Add(rawLine, smoothLine)
	p.Legend.Add("raw", rawLine)
	p.Legend.Add("smoothed", smoothLine)

	if err := p.Save(10*vg.Inch, 4*vg.Inch, outPath); err != nil {
		log.Fatalf("failed to save plot: %v", err)
	}
	fmt.Printf("wrote %s (%d samples)\n", outPath, len(rawPts))
}

func clampRatio(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
