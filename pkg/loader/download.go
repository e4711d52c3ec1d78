// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.
package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

// DefaultEndpoint is the model hub artifacts are fetched from.
const DefaultEndpoint = "https://huggingface.co"

// hubFileURL follows the hub's resolve convention for repo files.
func hubFileURL(endpoint, repo, filename string) string {
	return fmt.Sprintf("%s/%s/resolve/main/%s", endpoint, repo, filename)
}

// downloadFile fetches url into fp, reporting progress as it goes. Hub and
// network failures are returned unmodified; there is no retry.
func downloadFile(ctx context.Context, client *http.Client, url, fp, authToken string) error {
	if err := os.MkdirAll(filepath.Dir(fp), 0755); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("failed to download %s: %s", url, resp.Status)
	}

	out, err := os.Create(fp)
	if err != nil {
		return err
	}
	defer out.Close()

	// Track progress
	totalBytes := resp.ContentLength
	var bytesRead int64
	progressReader := io.TeeReader(resp.Body, &writeCounter{filename: fp, total: totalBytes, read: &bytesRead})

	if _, err := io.Copy(out, progressReader); err != nil {
		return err
	}
	return nil
}

type writeCounter struct {
	filename     string
	total        int64
	read         *int64
	lastReported int64
}

func (wc *writeCounter) Write(p []byte) (int, error) {
	n := len(p)
	*wc.read += int64(n)

	if wc.total <= 0 {
		return n, nil
	}

	// Report every 1% increment of the total size
	onePercent := wc.total / 100
	if onePercent > 0 && *wc.read-wc.lastReported >= onePercent {
		klog.V(4).Infof("downloading [%s]: %d out of %d bytes (%.2f%%)",
			filepath.Base(wc.filename), *wc.read, wc.total, float64(*wc.read)/float64(wc.total)*100)
		wc.lastReported = *wc.read
	}

	return n, nil
}
