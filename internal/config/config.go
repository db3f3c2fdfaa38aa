// Package config loads the engine configuration from the environment and an
// optional .env file.
package config

import (
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type WindowConfiguration struct {
	Title  string
	Width  int
	Height int
}

type RendererConfiguration struct {
	// Validation enables the Khronos validation layer and forwards its
	// messages to the log.
	Validation         bool
	FramesInFlight     int
	DescriptorPoolSize int
}

type AssetsConfiguration struct {
	Dir string
}

type Configuration struct {
	Window   WindowConfiguration
	Renderer RendererConfiguration
	Assets   AssetsConfiguration
	LogLevel logrus.Level
}

// Default is the configuration used for every key that is not set.
var Default = Configuration{
	Window: WindowConfiguration{
		Title:  "Lunar",
		Width:  800,
		Height: 600,
	},
	Renderer: RendererConfiguration{
		Validation:         false,
		FramesInFlight:     2,
		DescriptorPoolSize: 100,
	},
	Assets: AssetsConfiguration{
		Dir: "./assets",
	},
	LogLevel: logrus.InfoLevel,
}

// Load reads the configuration. Variables already present in the
// environment take precedence over the ones in dotenv. A missing dotenv
// file is not an error.
func Load(dotenv string) (Configuration, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Configuration{}, errors.Wrapf(err, "load %s", dotenv)
		}
	}
	envy.Reload()

	cfg := Default
	cfg.Window.Title = envy.Get("LUNAR_WINDOW_TITLE", cfg.Window.Title)
	cfg.Assets.Dir = envy.Get("LUNAR_ASSETS_DIR", cfg.Assets.Dir)

	var err error
	if cfg.Window.Width, err = positive("LUNAR_WINDOW_WIDTH", cfg.Window.Width); err != nil {
		return Configuration{}, err
	}
	if cfg.Window.Height, err = positive("LUNAR_WINDOW_HEIGHT", cfg.Window.Height); err != nil {
		return Configuration{}, err
	}
	if cfg.Renderer.FramesInFlight, err = positive("LUNAR_FRAMES_IN_FLIGHT", cfg.Renderer.FramesInFlight); err != nil {
		return Configuration{}, err
	}
	if cfg.Renderer.DescriptorPoolSize, err = positive("LUNAR_DESCRIPTOR_POOL_SIZE", cfg.Renderer.DescriptorPoolSize); err != nil {
		return Configuration{}, err
	}

	if v := envy.Get("LUNAR_VALIDATION", ""); v != "" {
		if cfg.Renderer.Validation, err = strconv.ParseBool(v); err != nil {
			return Configuration{}, errors.Wrap(err, "LUNAR_VALIDATION")
		}
	}

	if v := envy.Get("LUNAR_LOG_LEVEL", ""); v != "" {
		if cfg.LogLevel, err = logrus.ParseLevel(v); err != nil {
			return Configuration{}, errors.Wrap(err, "LUNAR_LOG_LEVEL")
		}
	}

	return cfg, nil
}

func positive(key string, fallback int) (int, error) {
	v := envy.Get(key, "")
	if v == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrap(err, key)
	}
	if n <= 0 {
		return 0, errors.Newf("%s must be positive, got %d", key, n)
	}
	return n, nil
}
