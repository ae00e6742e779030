// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	renderInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kicadsnap",
		Subsystem: "render",
		Name:      "invocations_total",
		Help:      "kicad-cli export invocations by artifact kind and outcome.",
	}, []string{"kind", "status"})

	renderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kicadsnap",
		Subsystem: "render",
		Name:      "duration_seconds",
		Help:      "Wall time of a full render (export plus rasterization).",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"kind"})
)
