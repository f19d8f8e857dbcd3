package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// Provisioner publishes delegation records for a registered domain
type Provisioner interface {
	Provision(ctx context.Context, domain string, nameservers []string) error
}

// CloudflareProvisioner creates one NS record per nameserver through the
// Cloudflare DNS records API
type CloudflareProvisioner struct {
	APIURL   string
	APIToken string
	ZoneID   string
	TTL      int
	client   *http.Client
}

// NewCloudflareProvisioner creates a new DNS provisioner
func NewCloudflareProvisioner(apiURL, apiToken, zoneID string, ttl int, timeout time.Duration) *CloudflareProvisioner {
	return &CloudflareProvisioner{
		APIURL:   strings.TrimRight(apiURL, "/"),
		APIToken: apiToken,
		ZoneID:   zoneID,
		TTL:      ttl,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type dnsRecord struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
}

// Provision attempts every record once. Failed records are logged and
// returned together; records that succeeded are kept.
func (p *CloudflareProvisioner) Provision(ctx context.Context, domain string, nameservers []string) error {
	var errs []error
	for _, ns := range nameservers {
		if err := p.createRecord(ctx, domain, ns); err != nil {
			log.Printf("DNS record %s NS %s failed: %v", domain, ns, err)
			errs = append(errs, err)
			continue
		}
		log.Printf("DNS record %s NS %s created", domain, ns)
	}
	return errors.Join(errs...)
}

func (p *CloudflareProvisioner) createRecord(ctx context.Context, domain, nameserver string) error {
	body, err := json.Marshal(dnsRecord{
		Type:    "NS",
		Name:    domain,
		Content: nameserver,
		TTL:     p.TTL,
	})
	if err != nil {
		return err
	}

	apiURL := fmt.Sprintf("%s/zones/%s/dns_records", p.APIURL, p.ZoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("invalid DNS API request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call DNS API: %w", err)
	}
	defer resp.Body.Close()

	// API returns {success, errors: [{code, message}]}
	var apiResponse struct {
		Success bool `json:"success"`
		Errors  []struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&apiResponse)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && len(apiResponse.Errors) > 0 {
			return fmt.Errorf("DNS API returned status %d: %s", resp.StatusCode, apiResponse.Errors[0].Message)
		}
		return fmt.Errorf("DNS API returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to parse DNS API response: %w", decodeErr)
	}
	if !apiResponse.Success {
		return fmt.Errorf("DNS API reported failure")
	}

	return nil
}
