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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	settingsPath string
	logLevel     string
	quietLogs    bool

	archiveMemo   string
	archiveOutput string
	extraIncludes []string
	extraExcludes []string

	compareScale  float64
	reportDir     string
	reportDefault bool
	noPreRender   bool

	rootCmd = &cobra.Command{
		Use:   "kicadsnap",
		Short: "Snapshot and visually compare KiCad projects",
		Long: `kicadsnap archives a KiCad project into an immutable snapshot and
renders pixel-level visual comparisons between two states of the
project (snapshot-vs-current, snapshot-vs-snapshot).`,
	}

	// --- Archive ---
	archiveCmd = &cobra.Command{
		Use:   "archive [project file or directory]",
		Short: "Build a filtered snapshot archive of a project",
		Args:  cobra.ExactArgs(1),
		Run:   runArchive, // Defined in cmd_archive.go
	}

	// --- Compare ---
	compareCmd = &cobra.Command{
		Use:   "compare [side A] [side B]",
		Short: "Render and diff two project states (archive or directory per side)",
		Args:  cobra.ExactArgs(2),
		Run:   runCompare, // Defined in cmd_compare.go
	}

	// --- Tool Management ---
	toolCmd = &cobra.Command{
		Use:   "tool",
		Short: "Manage the kicad-cli executable used for rendering",
	}
	toolLocateCmd = &cobra.Command{
		Use:   "locate",
		Short: "Resolve and validate the kicad-cli executable",
		Run:   runToolLocate, // Defined in cmd_tool.go
	}
	toolSetPathCmd = &cobra.Command{
		Use:   "set-path [path]",
		Short: "Pin kicad-cli to a specific executable (empty string clears the override)",
		Args:  cobra.ExactArgs(1),
		Run:   runToolSetPath, // Defined in cmd_tool.go
	}

	// --- Board Utilities ---
	layersCmd = &cobra.Command{
		Use:   "layers [board file]",
		Short: "List the layers defined by a board file",
		Args:  cobra.ExactArgs(1),
		Run:   runLayers, // Defined in cmd_tool.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", defaultSettingsPath(),
		"Settings file location")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&quietLogs, "quiet", false,
		"Suppress log output on stderr")

	rootCmd.AddCommand(archiveCmd)
	archiveCmd.Flags().StringVarP(&archiveMemo, "memo", "m", "",
		"Short note appended to the archive filename")
	archiveCmd.Flags().StringVarP(&archiveOutput, "output", "o", "",
		"Archive destination (default: <project dir>-backups/<name>-<timestamp>.zip)")
	archiveCmd.Flags().StringSliceVar(&extraIncludes, "include", nil,
		"Additional include glob patterns")
	archiveCmd.Flags().StringSliceVar(&extraExcludes, "exclude", nil,
		"Additional exclude glob patterns")

	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().Float64Var(&compareScale, "scale", 0,
		"Raster scale multiplier: 1, 1.5, 2, 3, 4, 5 (default from settings, else 1)")
	compareCmd.Flags().StringVar(&reportDir, "report", "",
		"Write a report bundle to this directory (empty: print verdicts only)")
	compareCmd.Flags().BoolVar(&reportDefault, "report-default", false,
		"Write a report bundle to the conventional location in the project folder")
	compareCmd.Flags().BoolVar(&noPreRender, "no-prerender", false,
		"Disable background pre-rendering")

	rootCmd.AddCommand(toolCmd)
	toolCmd.AddCommand(toolLocateCmd)
	toolCmd.AddCommand(toolSetPathCmd)

	rootCmd.AddCommand(layersCmd)
}
