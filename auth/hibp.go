package auth

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HIBP is a client for the Pwned Passwords range API. Only the first five
// hex digits of SHA-1(passphrase) leave the process.
type HIBP struct {
	RangeURL  string
	UserAgent string
	Client    *http.Client
}

// DefaultHIBP talks to the public API with a short timeout.
var DefaultHIBP = &HIBP{
	RangeURL:  "https://api.pwnedpasswords.com/range/",
	UserAgent: "secretvault/1.0",
	Client:    &http.Client{Timeout: 4 * time.Second},
}

// HIBPResult reports whether the passphrase hash appeared in the breach corpus.
type HIBPResult struct {
	Found bool
	Count int
}

// Check asks for padded results so the response size does not leak the
// prefix's popularity. Padding rows carry a zero count and never match.
func (h *HIBP) Check(ctx context.Context, pw string) (HIBPResult, error) {
	sum := sha1.Sum([]byte(pw))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:5], digest[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.RangeURL+prefix, nil)
	if err != nil {
		return HIBPResult{}, fmt.Errorf("build breach request: %w", err)
	}
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}
	req.Header.Set("Add-Padding", "true")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return HIBPResult{}, fmt.Errorf("query breach range: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return HIBPResult{}, fmt.Errorf("query breach range: status %s", resp.Status)
	}
	return scanRange(resp.Body, suffix)
}

// scanRange looks for suffix in "SUFFIX:COUNT" lines.
func scanRange(r io.Reader, suffix string) (HIBPResult, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		hash, count, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok || !strings.EqualFold(hash, suffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(count))
		if err != nil {
			return HIBPResult{}, fmt.Errorf("parse breach count: %w", err)
		}
		return HIBPResult{Found: n > 0, Count: n}, nil
	}
	if err := sc.Err(); err != nil {
		return HIBPResult{}, fmt.Errorf("read breach range: %w", err)
	}
	return HIBPResult{}, nil
}
