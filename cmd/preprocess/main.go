package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"traffic_counts/pkg/graph"
	osmparser "traffic_counts/pkg/osm"
)

func main() {
	input := flag.String("osm", "", "Path to .osm.pbf file")
	tripsPath := flag.String("trips", "", "Path to trips file (one trip of OSM node ids per line)")
	output := flag.String("out", "counts.bin", "Output binary counts file path")
	bbox := flag.String("bbox", "", "Bounding box filter: minLat,minLng,maxLat,maxLng (e.g. 1.15,103.6,1.48,104.1)")
	singapore := flag.Bool("singapore", false, "Shortcut for --bbox 1.15,103.6,1.48,104.1 (Singapore bounding box)")
	largest := flag.Bool("largest-component", false, "Keep only the largest connected component")
	flag.Parse()

	if *input == "" || *tripsPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: preprocess --osm <file.osm.pbf> --trips <trips.txt> [--out counts.bin] [--largest-component] [--singapore | --bbox minLat,minLng,maxLat,maxLng]")
		os.Exit(1)
	}

	// Parse bbox option.
	var opts osmparser.ParseOptions
	if *singapore {
		opts.BBox = osmparser.BBox{MinLat: 1.15, MaxLat: 1.48, MinLng: 103.6, MaxLng: 104.1}
		log.Println("Using Singapore bounding box filter: lat [1.15, 1.48], lng [103.6, 104.1]")
	} else if *bbox != "" {
		var minLat, minLng, maxLat, maxLng float64
		_, err := fmt.Sscanf(*bbox, "%f,%f,%f,%f", &minLat, &minLng, &maxLat, &maxLng)
		if err != nil {
			log.Fatalf("Invalid bbox format (expected minLat,minLng,maxLat,maxLng): %v", err)
		}
		opts.BBox = osmparser.BBox{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}
		log.Printf("Using bounding box filter: lat [%.4f, %.4f], lng [%.4f, %.4f]", minLat, maxLat, minLng, maxLng)
	}

	start := time.Now()

	// Step 1: Parse OSM data.
	log.Println("Opening OSM file...")
	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("Failed to open input file: %v", err)
	}
	defer f.Close()

	log.Println("Parsing OSM data...")
	parseResult, err := osmparser.Parse(context.Background(), f, opts)
	if err != nil {
		log.Fatalf("Failed to parse OSM data: %v", err)
	}
	log.Printf("Parsed %d ways, %d nodes", len(parseResult.Ways), len(parseResult.NodeLat))

	// Step 2: Split ways into segments.
	log.Println("Building segment network...")
	n := graph.Build(parseResult)
	log.Printf("Network: %d segments, %d components", n.NumSegments, graph.CountComponents(n))

	// Step 3: Optionally keep the largest connected component.
	if *largest {
		log.Println("Extracting largest connected component...")
		segs := graph.LargestComponent(n)
		if n.NumSegments > 0 {
			log.Printf("Largest component: %d segments (%.1f%%)", len(segs), float64(len(segs))/float64(n.NumSegments)*100)
		}
		n = graph.FilterSegments(n, segs)
	}

	// Step 4: Match trips onto directed edges.
	log.Printf("Reading trips from %s...", *tripsPath)
	tf, err := os.Open(*tripsPath)
	if err != nil {
		log.Fatalf("Failed to open trips file: %v", err)
	}
	trips, err := graph.ReadTrips(tf)
	tf.Close()
	if err != nil {
		log.Fatalf("Failed to read trips: %v", err)
	}
	stored, unmatched := graph.MatchTrips(n, trips)
	log.Printf("Matched %d trips into %d runs (%d unmatched), %d trip edges", len(trips)-unmatched, stored, unmatched, len(n.TripEdges))

	// Step 5: Serialize to binary.
	log.Printf("Writing binary to %s...", *output)
	if err := graph.WriteBinary(*output, n); err != nil {
		log.Fatalf("Failed to write binary: %v", err)
	}

	info, _ := os.Stat(*output)
	elapsed := time.Since(start)
	log.Printf("Done in %s. Output: %s (%.1f MB)", elapsed.Round(time.Second), *output, float64(info.Size())/(1024*1024))
}
