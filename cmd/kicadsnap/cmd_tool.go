// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/kicadsnap/pkg/ux"
	"github.com/AleutianAI/kicadsnap/services/snapshot/settings"
	"github.com/AleutianAI/kicadsnap/services/snapshot/toolchain"
)

func openStore() settings.Store {
	return settings.NewFileStore(settingsPath)
}

// newLocator builds a Locator honoring the stored user override.
func newLocator(store settings.Store) *toolchain.Locator {
	opts := []toolchain.LocatorOption{toolchain.WithLogger(logger.Slog())}
	if path, err := store.Get(settings.KeyToolPath); err == nil && path != "" {
		opts = append(opts, toolchain.WithConfiguredPath(path))
	}
	return toolchain.NewLocator(opts...)
}

// mustLocateTool resolves kicad-cli or exits with the attempted paths.
// Rendering never proceeds without a validated tool.
func mustLocateTool(ctx context.Context, store settings.Store) *toolchain.Handle {
	handle, err := newLocator(store).Locate(ctx)
	if err != nil {
		ux.Errorf("%v", err)
		ux.Mutedf("Install KiCad or pin the executable with: kicadsnap tool set-path <path>")
		os.Exit(1)
	}
	return handle
}

func runToolLocate(cmd *cobra.Command, args []string) {
	handle := mustLocateTool(context.Background(), openStore())
	version := handle.Version
	if !handle.VersionKnown() {
		version = "unknown"
	}
	ux.Successf("kicad-cli %s", version)
	ux.Mutedf("%s", handle.Path)
}

func runToolSetPath(cmd *cobra.Command, args []string) {
	store := openStore()
	path := strings.TrimSpace(args[0])

	if path == "" {
		if err := store.Set(settings.KeyToolPath, ""); err != nil {
			ux.Errorf("clear tool path: %v", err)
			os.Exit(1)
		}
		ux.Successf("Cleared the kicad-cli override")
		return
	}

	// Validate before persisting so a typo never wedges rendering.
	locator := toolchain.NewLocator(
		toolchain.WithConfiguredPath(path),
		toolchain.WithLogger(logger.Slog()))
	handle, err := locator.Locate(context.Background())
	if err != nil || handle.Path != mustAbs(path) {
		ux.Errorf("%q did not validate as kicad-cli", path)
		os.Exit(1)
	}
	if err := store.Set(settings.KeyToolPath, handle.Path); err != nil {
		ux.Errorf("save tool path: %v", err)
		os.Exit(1)
	}
	ux.Successf("Pinned kicad-cli to %s", handle.Path)
}

func runLayers(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	board := args[0]

	// Layer listing works without a validated tool via the board-file
	// scan, so a missing kicad-cli only degrades, not fails.
	handle, err := newLocator(openStore()).Locate(ctx)
	if err != nil {
		ux.Warnf("kicad-cli unavailable, reading the board file directly")
		handle = nil
	}

	layers, err := toolchain.DetectPCBLayers(ctx, handle, board)
	if err != nil {
		if errors.Is(err, toolchain.ErrNoLayers) {
			ux.Errorf("no layers found in %s", board)
		} else {
			ux.Errorf("%v", err)
		}
		os.Exit(1)
	}
	for _, layer := range layers {
		ux.Mutedf("%s", layer)
	}
	ux.Successf("%d layer(s)", len(layers))
}

// mustAbs mirrors the locator's path normalization so the validated
// handle can be compared against the user's argument.
func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
