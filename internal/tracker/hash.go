package tracker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// HashContentSync returns the hex SHA-256 digest of text.
func HashContentSync(text string) string {
	return hashBytes([]byte(text))
}

// HashContent computes the same digest as HashContentSync without blocking the caller:
// the work runs on its own goroutine and the call returns early if ctx is done.
func HashContent(ctx context.Context, text string) (string, error) {
	done := make(chan string, 1)
	go func() { done <- HashContentSync(text) }()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case h := <-done:
		return h, nil
	}
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// hashFile streams path through SHA-256. The digest equals HashContentSync of the file's text.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
