package main

import (
	"flag"
	"runtime"

	"lumen/internal/logger"
	"lumen/pkg/config"
	"lumen/pkg/engine"
)

func init() {
	// GLFW requires the program to be running on the main thread
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	device := flag.String("device", "", "Graphics device (opengl, soft); overrides graphics.device")
	frames := flag.Int("frames", 0, "Stop after this many frames (0 runs until the window closes)")
	snapshot := flag.String("snapshot", "", "Write the last frame to this WebP file")
	bakeOnly := flag.Bool("bake-only", false, "Load or bake the light probes and exit")
	flag.Parse()

	cfg, cfgErr := config.LoadConfig(*configPath)

	log := logger.NewLogger(cfg.Logging.Level)
	if cfg.Logging.File != "" {
		l, err := logger.NewMultiLogger(cfg.Logging.Level, cfg.Logging.File)
		if err != nil {
			log.Warnf("Logging to console only: %v", err)
		} else {
			log = l
		}
	}
	defer log.Close()

	if cfgErr != nil {
		log.Warnf("%v", cfgErr)
	}
	if *device != "" {
		cfg.Graphics.Device = *device
	}
	// Snapshots of a fixed frame count never need a window
	if *snapshot != "" && *frames > 0 && *device == "" {
		cfg.Graphics.Device = engine.DeviceSoft
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Infof("Starting Lumen on the %s device...", cfg.Graphics.Device)
	e, err := engine.New(cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}
	defer e.Close()

	if *bakeOnly {
		log.Info("Probes are ready, exiting")
		return
	}

	if err := e.Run(*frames); err != nil {
		e.Close()
		log.Fatalf("Render loop failed: %v", err)
	}
	if *snapshot != "" {
		if err := e.Snapshot(*snapshot); err != nil {
			e.Close()
			log.Fatalf("%v", err)
		}
	}
}
