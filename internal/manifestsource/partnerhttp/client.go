package partnerhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ParcelHub/ShipCore/internal/models"
	"github.com/pkg/errors"
)

// Client looks up descriptive fields at the partner manifest API. The
// partner only carries one code family, so anything outside that prefix is
// reported as a miss without a network round trip.
type Client struct {
	baseURL    string
	apiKey     string
	codePrefix string
	httpc      *http.Client
}

func New(baseURL, apiKey, codePrefix string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9100"
	}
	if codePrefix == "" {
		codePrefix = "BCE"
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		codePrefix: codePrefix,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type partnerResp struct {
	Status string `json:"status"`
	Data   struct {
		TrackingCode     string `json:"trackingCode"`
		SenderName       string `json:"senderName"`
		ReceiverName     string `json:"receiverName"`
		ReceiverCity     string `json:"receiverCity"`
		ReceiverDistrict string `json:"receiverDistrict"`
	} `json:"data"`
}

func (c *Client) Lookup(ctx context.Context, trackingCode string) (*models.ManifestDescriptor, bool, error) {
	if !strings.HasPrefix(trackingCode, c.codePrefix) {
		return nil, false, nil
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, false, errors.Wrap(err, "parse base url")
	}
	u.Path = "/v1/manifests/" + url.PathEscape(trackingCode)

	q := u.Query()
	q.Set("apiKey", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, false, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, false, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, false, fmt.Errorf("partner manifest http %d", resp.StatusCode)
	}

	var r partnerResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, false, errors.Wrap(err, "decode")
	}
	if r.Status != "ok" {
		return nil, false, fmt.Errorf("partner manifest status=%s", r.Status)
	}

	return &models.ManifestDescriptor{
		TrackingCode:     trackingCode,
		SenderName:       r.Data.SenderName,
		ReceiverName:     r.Data.ReceiverName,
		ReceiverCity:     r.Data.ReceiverCity,
		ReceiverDistrict: r.Data.ReceiverDistrict,
		Source:           "partner",
	}, true, nil
}
