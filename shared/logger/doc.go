// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

/*
Package logger provides structured JSON logging for WebAgent components.

# Overview

The logger package outputs single-line JSON to stdout, making logs easily
consumable by CloudWatch, ELK stack, or other log aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (api, worker, etc.)
  - Instance ID and container name (for distributed tracing)
  - Task ID and run ID (so a full run can be pulled from the logs)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("api")

Log messages with task and run context:

	log.Info("task-123", "run-456", "Replaying cached workflow", map[string]interface{}{
	    "steps": 4,
	})

Log errors with the error detail attached:

	log.ErrorWithErr("task-123", "run-456", "Browser session failed", err, nil)

Log with duration tracking:

	start := time.Now()
	// ... do work ...
	log.InfoWithDuration("task-123", "run-456", "Run completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Environment Variables

The logger reads these environment variables:

  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
