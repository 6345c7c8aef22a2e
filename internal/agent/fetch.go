package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fotad-io/fotad/pkg/log"
)

// Fetcher downloads one artifact into dest. Implementations must either
// produce the complete file or remove the partial result and return an
// error; the scratch area never keeps torn downloads.
type Fetcher interface {
	Fetch(ctx context.Context, a Artifact, dest string) error
}

// HTTPFetcher downloads artifacts over plain HTTP(S) with a bounded number
// of retries on transport failures.
type HTTPFetcher struct {
	Retries int

	httpc  *http.Client
	logger log.Logger
}

func NewHTTPFetcher(timeout time.Duration, retries int) *HTTPFetcher {
	return &HTTPFetcher{
		Retries: retries,
		httpc:   &http.Client{Timeout: timeout},
		logger:  log.WithName("fetch"),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, a Artifact, dest string) error {
	var lastErr error
	for attempt := 0; attempt <= f.Retries; attempt++ {
		if attempt > 0 {
			f.logger.Warn("Retrying download", "artifact", a.Name, "attempt", attempt, "error", lastErr.Error())
			select {
			case <-ctx.Done():
				return transportErr("download %s: %w", a.Name, ctx.Err())
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
		}
		if lastErr = f.fetchOnce(ctx, a, dest); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return transportErr("download %s: %w", a.Name, lastErr)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, a Artifact, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return err
	}

	resp, err := f.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

// verifyArtifact recomputes size and sha256 of the downloaded file and
// compares them against the manifest. It never retries; a mismatch is
// final for this cycle.
func verifyArtifact(a Artifact, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return storageErr("stat %s: %w", a.Name, err)
	}
	if fi.Size() != a.Size {
		return integrityErr("%s: size %d, manifest says %d", a.Name, fi.Size(), a.Size)
	}

	in, err := os.Open(path)
	if err != nil {
		return storageErr("open %s: %w", a.Name, err)
	}
	defer in.Close()

	h := sha256.New()
	if _, err := io.Copy(h, in); err != nil {
		return storageErr("hash %s: %w", a.Name, err)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(sum, a.SHA256) {
		return integrityErr("%s: sha256 %s, manifest says %s", a.Name, sum, a.SHA256)
	}
	return nil
}

// scratchPath keeps artifact files flat in the scratch dir, keyed by name.
func scratchPath(scratchDir string, a Artifact) string {
	return filepath.Join(scratchDir, filepath.Base(a.Name))
}
