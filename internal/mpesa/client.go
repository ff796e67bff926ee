package mpesa

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/frantchessico/prato-frio-filme/internal/logging"
)

const (
	c2bPort = "18352"
	c2bPath = "/ipg/v1x/c2bPayment/singleStage/"
)

// Client talks to the Vodacom Mozambique M-Pesa C2B API.
type Client struct {
	apiKey              string
	publicKey           string
	serviceProviderCode string
	host                string
	http                *http.Client
	logger              *slog.Logger
}

// NewClient builds the live gateway client.
func NewClient(apiKey, publicKey, serviceProviderCode, host string, logger *slog.Logger) *Client {
	return &Client{
		apiKey:              apiKey,
		publicKey:           publicKey,
		serviceProviderCode: serviceProviderCode,
		host:                host,
		http:                &http.Client{Timeout: 90 * time.Second},
		logger:              logger,
	}
}

type c2bRequest struct {
	TransactionReference string `json:"input_TransactionReference"`
	CustomerMSISDN       string `json:"input_CustomerMSISDN"`
	Amount               string `json:"input_Amount"`
	ThirdPartyReference  string `json:"input_ThirdPartyReference"`
	ServiceProviderCode  string `json:"input_ServiceProviderCode"`
}

// Charge initiates a single-stage C2B payment. The subscriber approves the
// charge on their handset; settlement arrives later on the webhook.
func (c *Client) Charge(ctx context.Context, input ChargeInput) (ChargeResult, error) {
	reference := input.Reference
	if reference == "" {
		reference = NewReference()
	}
	msisdn := "258" + NormalizePhone(input.Phone)

	payload, err := json.Marshal(c2bRequest{
		TransactionReference: reference,
		CustomerMSISDN:       msisdn,
		Amount:               strconv.FormatInt(input.Amount, 10),
		ThirdPartyReference:  reference,
		ServiceProviderCode:  c.serviceProviderCode,
	})
	if err != nil {
		return ChargeResult{}, err
	}

	bearer, err := c.bearerToken()
	if err != nil {
		return ChargeResult{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	url := fmt.Sprintf("https://%s:%s%s", c.host, c2bPort, c2bPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return ChargeResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "*")
	req.Header.Set("Authorization", "Bearer "+bearer)

	c.logger.Info("initiating mpesa charge",
		slog.String("reference", reference),
		slog.String("msisdn", logging.MaskPhone(msisdn)),
		slog.Int64("amount", input.Amount))

	resp, err := c.http.Do(req)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return ChargeResult{}, fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		desc, _ := raw["output_ResponseDesc"].(string)
		if desc == "" {
			desc = resp.Status
		}
		return ChargeResult{}, fmt.Errorf("%w: %s", ErrGateway, desc)
	}

	txID, _ := raw["output_TransactionID"].(string)
	if txID == "" {
		txID = reference
	}

	return ChargeResult{Reference: reference, TransactionID: txID, Raw: raw}, nil
}

// bearerToken encrypts the API key under the provider public key, as the
// provider requires for every call.
func (c *Client) bearerToken() (string, error) {
	der, err := base64.StdEncoding.DecodeString(c.publicKey)
	if err != nil {
		return "", fmt.Errorf("decode public key: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return "", fmt.Errorf("parse public key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return "", fmt.Errorf("public key is not RSA")
	}
	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, rsaKey, []byte(c.apiKey))
	if err != nil {
		return "", fmt.Errorf("encrypt api key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(encrypted), nil
}
