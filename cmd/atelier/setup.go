package main

import (
	"github.com/go-gl/glfw/v3.3/glfw"

	"atelier/internal/config"
)

func setupWindow(cfg config.Config) (*glfw.Window, error) {
	// Vulkan drives the surface; GLFW must not create a GL context.
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	window, err := glfw.CreateWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title, nil, nil)
	if err != nil {
		return nil, err
	}
	return window, nil
}
