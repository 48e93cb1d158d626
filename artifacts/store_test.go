// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package artifacts

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestMemoryStorePutScreenshot(t *testing.T) {
	store := NewMemoryStore()
	png := []byte{0x89, 'P', 'N', 'G'}

	url, err := store.PutScreenshot(context.Background(), "run-1", 3, png)
	if err != nil {
		t.Fatalf("PutScreenshot failed: %v", err)
	}
	if !strings.HasPrefix(url, "memory://runs/run-1/steps/003.png") {
		t.Errorf("unexpected url %q", url)
	}
	if !bytes.Equal(store.Get("run-1", 3), png) {
		t.Error("stored bytes differ")
	}

	// The store keeps its own copy.
	png[0] = 0
	if store.Get("run-1", 3)[0] != 0x89 {
		t.Error("store aliases the caller's buffer")
	}
}

func TestScreenshotKeyLayout(t *testing.T) {
	if got := screenshotKey("run-9", 12); got != "runs/run-9/steps/012.png" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{})
	if err == nil {
		t.Fatal("expected error without bucket")
	}
}
