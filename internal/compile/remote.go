package compile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// maxRemoteArtifact bounds how much of a provider response is read.
const maxRemoteArtifact = 64 << 20

// RemoteHTTP asks a latexonline-style rendering service for a PDF with
// GET <Endpoint>?text=<content>.
type RemoteHTTP struct {
	Endpoint  string
	Limit     time.Duration
	Client    *http.Client
	Validator Validator
}

func (r *RemoteHTTP) Name() string {
	if u, err := url.Parse(r.Endpoint); err == nil && u.Host != "" {
		return "remote:" + u.Host
	}
	return "remote"
}

func (r *RemoteHTTP) Timeout() time.Duration { return r.Limit }

func (r *RemoteHTTP) Validate(b []byte) error {
	if r.Validator == nil {
		return PDFSignature(b)
	}
	return r.Validator(b)
}

func (r *RemoteHTTP) Render(ctx context.Context, _ string, content string) ([]byte, error) {
	u, err := url.Parse(r.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("bad endpoint %q: %w", r.Endpoint, err)
	}
	q := u.Query()
	q.Set("text", content)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/pdf")
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s answered %s", u.Host, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxRemoteArtifact))
}
