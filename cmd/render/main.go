// Command render renders a single frame from a scene description to a PNG.
// When the scene samples a stored voxel grid, pass -db so snapshot lookups
// can resolve. With -ref the rendered frame is scored against a reference
// image and the quality report is printed as JSON.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/banshee-data/radiance.report/internal/config"
	"github.com/banshee-data/radiance.report/internal/db"
	"github.com/banshee-data/radiance.report/internal/field/voxelgrid"
	"github.com/banshee-data/radiance.report/internal/render"
	"github.com/banshee-data/radiance.report/internal/scene"
)

func main() {
	var scenePath string
	var outPath string
	var dbPath string
	var refPath string
	var configPath string

	flag.StringVar(&scenePath, "scene", "", "path to scene JSON")
	flag.StringVar(&outPath, "out", "render.png", "output PNG path")
	flag.StringVar(&dbPath, "db", "", "sqlite db for grid snapshot scenes")
	flag.StringVar(&refPath, "ref", "", "reference PNG to compare against")
	flag.StringVar(&configPath, "config", "", "tuning config JSON supplying scene fallbacks")
	flag.Parse()

	if scenePath == "" {
		log.Fatalf("scene must be provided")
	}

	defaults := scene.StockDefaults()
	if configPath != "" {
		tuning, err := config.LoadTuningConfig(configPath)
		if err != nil {
			log.Fatalf("load tuning config: %v", err)
		}
		defaults = scene.DefaultsFromTuning(tuning)
	}

	cfg, err := scene.LoadWithDefaults(scenePath, defaults)
	if err != nil {
		log.Fatalf("load scene: %v", err)
	}

	var loader voxelgrid.SnapshotLoader
	if dbPath != "" {
		dbConn, err := db.NewDB(dbPath)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer dbConn.Close()
		loader = dbConn
	}

	cam, radianceField, err := cfg.Build(loader)
	if err != nil {
		log.Fatalf("build scene: %v", err)
	}

	renderer, err := render.NewRenderer(cfg.RenderConfig())
	if err != nil {
		log.Fatalf("renderer config: %v", err)
	}

	start := time.Now()
	img, err := renderer.RenderFrame(context.Background(), cam, radianceField)
	if err != nil {
		log.Fatalf("render failed: %v", err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	if err := img.WritePNG(out); err != nil {
		log.Fatalf("write png: %v", err)
	}
	if err := out.Close(); err != nil {
		log.Fatalf("close output: %v", err)
	}

	width, height := cam.ImageSize()
	fmt.Printf("rendered %dx%d in %s -> %s\n", width, height, time.Since(start).Round(time.Millisecond), outPath)

	if refPath != "" {
		refFile, err := os.Open(refPath)
		if err != nil {
			log.Fatalf("open reference: %v", err)
		}
		ref, err := render.ReadPNG(refFile)
		refFile.Close()
		if err != nil {
			log.Fatalf("read reference: %v", err)
		}
		report, err := render.CompareImages(img, ref)
		if err != nil {
			log.Fatalf("compare: %v", err)
		}
		reportJSON, err := report.ToJSON()
		if err != nil {
			log.Fatalf("encode report: %v", err)
		}
		fmt.Println(reportJSON)
	}
}
