// internal/oracle/oracle.go

// Package oracle abstracts the mechanism that reports observed Bitcoin state
// for a receiving address. The engine only ever reads from it; failures are
// transient by contract and retried on the next reconciliation cycle.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/satmarket/satmarket-backend/internal/models"
)

// ErrUnavailable wraps every transport-level or upstream failure so callers
// can treat the whole class as retriable with a single errors.Is check.
var ErrUnavailable = errors.New("chain oracle unavailable")

// AddressStatus is the cumulative observed state of one address.
type AddressStatus struct {
	ReceivedSats  models.Satoshi `json:"total_received_sat"`
	Confirmations int            `json:"confirmations"`
	TxID          string         `json:"last_txid"`
}

// ChainOracle reports chain state for an address.
type ChainOracle interface {
	CheckAddressStatus(ctx context.Context, address string) (*AddressStatus, error)
}

// HTTPOracle queries a block-explorer-style JSON endpoint:
// GET {base}/addresses/{address} -> {"total_received_sat":..,"confirmations":..,"last_txid":".."}
type HTTPOracle struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPOracle(baseURL, apiKey string, timeout time.Duration) *HTTPOracle {
	return &HTTPOracle{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (o *HTTPOracle) CheckAddressStatus(ctx context.Context, address string) (*AddressStatus, error) {
	endpoint := fmt.Sprintf("%s/addresses/%s", o.baseURL, url.PathEscape(address))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	var status AddressStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}
	if status.ReceivedSats < 0 || status.Confirmations < 0 {
		return nil, fmt.Errorf("%w: negative values in response", ErrUnavailable)
	}

	return &status, nil
}
