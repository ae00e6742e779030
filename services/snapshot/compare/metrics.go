// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compare

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kicadsnap",
		Subsystem: "compare",
		Name:      "sessions_opened_total",
		Help:      "Comparison sessions successfully resolved.",
	})

	renderCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kicadsnap",
		Subsystem: "compare",
		Name:      "render_cache_hits_total",
		Help:      "Render requests served from session memory without a tool invocation.",
	})

	diffsComputed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kicadsnap",
		Subsystem: "compare",
		Name:      "diffs_total",
		Help:      "Artifact diffs by outcome.",
	}, []string{"outcome"})
)
