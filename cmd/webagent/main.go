// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

// Package main is the entry point for the WebAgent API service.
//
// WebAgent executes AI-driven browser tasks, caches successful runs as
// replayable workflows, and self-heals stale workflows by escalating to the
// AI engine.
//
// Usage:
//
//	./webagent
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string (or DATABASE_HOST/
//	               DATABASE_PORT/DATABASE_NAME/DATABASE_USER/
//	               DATABASE_PASSWORD/DATABASE_SSLMODE parts)
//	REDIS_ADDR - Redis address for the run lock (optional)
//	BROWSER_DRIVER_ENDPOINT - browser driver sidecar URL
//	BROWSER_PROVIDER - local, browserbase or steel (default: local)
//	ENGINE_ENDPOINT - AI engine sidecar URL
//	LLM_PROVIDER / LLM_MODEL / LLM_API_KEY / LLM_API_KEY_SECRET_ARN -
//	               parameter extraction provider (optional)
//	SCREENSHOT_BUCKET - S3 bucket for step screenshots (optional)
//	WEBAGENT_API_SECRET - JWT secret; unset disables API auth
//	WEBAGENT_CONFIG_FILE - optional YAML override file
package main

import (
	"webagent/platform/webagent"
)

func main() {
	webagent.Run()
}
