package main

import (
	"flag"
	"log/slog"
	"os"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/xlab/closer"

	"atelier/internal/config"
	"atelier/internal/render"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "atelier.toml", "path to the config file")
	debug := flag.Bool("debug", false, "enable debug logging and Vulkan validation")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	render.SetLogger(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}
	if *debug {
		cfg.Render.Validation = true
	}

	if err := glfw.Init(); err != nil {
		log.Error("init glfw", "err", err)
		os.Exit(1)
	}
	closer.Bind(glfw.Terminate)

	if !glfw.VulkanSupported() {
		log.Error("no vulkan loader available")
		closer.Close()
		os.Exit(1)
	}

	window, err := setupWindow(cfg)
	if err != nil {
		log.Error("create window", "err", err)
		closer.Close()
		os.Exit(1)
	}

	ctx, err := render.NewContext(window, render.ContextOptions{
		AppName: cfg.Window.Title,
		Debug:   cfg.Render.Validation,
	})
	if err != nil {
		log.Error("create device context", "err", err)
		closer.Close()
		os.Exit(1)
	}
	closer.Bind(ctx.Destroy)

	ed, err := newEditor(window, ctx, cfg)
	if err != nil {
		log.Error("set up editor", "err", err)
		closer.Close()
		os.Exit(1)
	}
	closer.Bind(ed.destroy)

	if err := ed.run(); err != nil {
		log.Error("render loop failed", "err", err)
		closer.Close()
		os.Exit(1)
	}
	closer.Close()
}
