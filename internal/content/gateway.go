package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"curio/pkg/domain"
	dErrors "curio/pkg/domain-errors"
)

// Gateway fetches content-addressed bytes over an IPFS-style HTTP gateway
// (GET {base}/ipfs/{locator}).
type Gateway struct {
	baseURL string
	client  *http.Client
}

// NewGateway builds a gateway client. The default timeout bounds how long a
// content read may hold a request; the registry itself has no timeout
// semantics.
func NewGateway(baseURL string) *Gateway {
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *Gateway) Fetch(ctx context.Context, locator domain.ContentLocator) ([]byte, error) {
	if locator.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "content locator is required")
	}

	url := fmt.Sprintf("%s/ipfs/%s", g.baseURL, locator.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build content request")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "content gateway unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, dErrors.New(dErrors.CodeUnavailable,
			fmt.Sprintf("content gateway returned %d for %s", resp.StatusCode, locator))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read content body")
	}
	return body, nil
}
