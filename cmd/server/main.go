package main

import (
	"flag"
	"log"
	"os"
	"time"

	"traffic_counts/pkg/api"
	"traffic_counts/pkg/config"
	"traffic_counts/pkg/counts"
	"traffic_counts/pkg/engine"
	"traffic_counts/pkg/graph"
	"traffic_counts/pkg/tiles"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	dataPath := flag.String("data", "", "Path to preprocessed counts binary (overrides config)")
	addr := flag.String("addr", "", "Listen address, e.g. :8080 (overrides config)")
	corsOrigin := flag.String("cors-origin", "", "CORS allowed origin (overrides config)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dataPath != "" {
		cfg.Data.Path = *dataPath
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *corsOrigin != "" {
		cfg.Server.CORSOrigin = *corsOrigin
	}

	start := time.Now()

	// Load network and trips.
	log.Printf("Loading counts from %s...", cfg.Data.Path)
	n, err := graph.ReadBinary(cfg.Data.Path)
	if err != nil {
		log.Fatalf("Failed to load counts: %v", err)
	}
	log.Printf("Loaded: %d segments, %d trips, %d trip edges", n.NumSegments, n.NumTrips(), len(n.TripEdges))

	// Build indexes.
	log.Println("Building count and R-tree indexes...")
	eng := engine.New(n, engine.Options{
		Trees: counts.TreeOptions{MaxDepth: cfg.Trees.MaxDepth, MinCount: cfg.Trees.MinCount},
		Tiles: tiles.Options{Layer: cfg.Tiles.Layer, MinZoom: cfg.Tiles.MinZoom, MaxZoom: cfg.Tiles.MaxZoom},
	})
	st := eng.Stats()

	log.Printf("Ready in %s: %d directed edges travelled, %d components",
		time.Since(start).Round(time.Millisecond), st.NumEdges, st.NumComponents)

	// Setup HTTP server.
	srvCfg := api.DefaultConfig(cfg.Server.Addr)
	srvCfg.ReadTimeout = cfg.Server.ReadTimeout
	srvCfg.WriteTimeout = cfg.Server.WriteTimeout
	srvCfg.RequestTimeout = cfg.Server.RequestTimeout
	srvCfg.MaxConcurrent = cfg.Server.MaxConcurrent
	srvCfg.CORSOrigin = cfg.Server.CORSOrigin
	srvCfg.APIKey = cfg.Server.APIKey

	stats := api.StatsResponse{
		NumSegments:   st.NumSegments,
		NumTrips:      st.NumTrips,
		NumEdges:      st.NumEdges,
		NumComponents: st.NumComponents,
	}

	handlers := api.NewHandlers(eng, stats, cfg.Tiles.PublicURL)
	srv := api.NewServer(srvCfg, handlers)

	if err := api.ListenAndServe(srv); err != nil {
		log.Printf("Server stopped: %v", err)
		os.Exit(1)
	}
}
