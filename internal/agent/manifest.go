package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fotad-io/fotad/internal/slot"
)

const (
	headerCurrentVersion = "X-Current-Version"
	headerCurrentSlot    = "X-Current-Slot"
)

// Artifact describes one downloadable piece of an update.
type Artifact struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Manifest is the update server's answer to a version check. Transient;
// nothing of it is persisted beyond the cycle except, eventually, the
// version itself once confirmed.
type Manifest struct {
	UpdateAvailable bool       `json:"update_available"`
	Version         string     `json:"version"`
	MinVersion      string     `json:"min_version,omitempty"`
	Mandatory       bool       `json:"mandatory,omitempty"`
	Artifacts       []Artifact `json:"artifacts,omitempty"`
}

func (m *Manifest) validate() error {
	if m.Version == "" {
		return fmt.Errorf("manifest missing version")
	}
	if len(m.Artifacts) == 0 {
		return fmt.Errorf("manifest for %s has no artifacts", m.Version)
	}
	for i := range m.Artifacts {
		a := &m.Artifacts[i]
		if a.Name == "" || a.URL == "" {
			return fmt.Errorf("artifact %d incomplete", i)
		}
		if len(a.SHA256) != 64 {
			return fmt.Errorf("artifact %s: bad sha256 %q", a.Name, a.SHA256)
		}
		if a.Size <= 0 {
			return fmt.Errorf("artifact %s: bad size %d", a.Name, a.Size)
		}
	}
	return nil
}

// ManifestClient asks the update server whether a newer version exists for
// this device. The request carries the device identity in the path and the
// currently confirmed version and active slot as headers, so the server can
// stage rollouts per fleet segment.
type ManifestClient struct {
	ServerURL string
	DeviceID  string

	httpc *http.Client
}

func NewManifestClient(serverURL, deviceID string, timeout time.Duration) *ManifestClient {
	return &ManifestClient{
		ServerURL: serverURL,
		DeviceID:  deviceID,
		httpc:     &http.Client{Timeout: timeout},
	}
}

// Check fetches the manifest. A response with update_available=false is a
// valid, empty manifest, not an error.
func (c *ManifestClient) Check(ctx context.Context, currentVersion string, active slot.ID) (*Manifest, error) {
	url := fmt.Sprintf("%s/api/v1/devices/%s/update", c.ServerURL, c.DeviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, transportErr("build manifest request: %w", err)
	}
	req.Header.Set(headerCurrentVersion, currentVersion)
	req.Header.Set(headerCurrentSlot, active.Label())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, transportErr("manifest fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return &Manifest{UpdateAvailable: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, transportErr("manifest fetch: server returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, transportErr("read manifest body: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, transportErr("decode manifest: %w", err)
	}
	if !m.UpdateAvailable {
		return &m, nil
	}
	if err := m.validate(); err != nil {
		return nil, transportErr("bad manifest: %w", err)
	}
	return &m, nil
}
