// Package tempmail implements the create_temp_mail tool against the mail.tm API.
package tempmail

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"lhihi/internal/logging"
	"lhihi/internal/tools"
)

// ToolName is the name the model calls disposable email creation by.
const ToolName = "create_temp_mail"

const (
	defaultBaseURL = "https://api.mail.tm"
	alphabet       = "abcdefghijklmnopqrstuvwxyz0123456789"
	localPartLen   = 10
	passwordLen    = 12
)

// Account is a created mailbox.
type Account struct {
	ID       string
	Address  string
	Password string
}

// Client talks to a mail.tm compatible API.
type Client struct {
	baseURL string
	http    *http.Client
	random  func(n int) (string, error)
}

// NewClient creates a client. Empty baseURL uses mail.tm; nil client uses http.DefaultClient.
func NewClient(baseURL string, client *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		random:  randomString,
	}
}

// CreateAccount picks the first available domain and registers a random mailbox on it.
func (c *Client) CreateAccount(ctx context.Context) (*Account, error) {
	domain, err := c.firstDomain(ctx)
	if err != nil {
		return nil, err
	}

	local, err := c.random(localPartLen)
	if err != nil {
		return nil, err
	}
	password, err := c.random(passwordLen)
	if err != nil {
		return nil, err
	}
	address := local + "@" + domain

	body, _ := json.Marshal(map[string]string{"address": address, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/accounts", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Failed to create account. %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logging.ToolsDebug("mail.tm account creation error: %s", snippet)
		return nil, fmt.Errorf("Failed to create account. Status: %d", resp.StatusCode)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || created.ID == "" {
		return nil, errors.New("Account creation did not return a valid ID.")
	}

	return &Account{ID: created.ID, Address: address, Password: password}, nil
}

// firstDomain accepts either a bare JSON array or a hydra collection.
func (c *Client) firstDomain(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/domains", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.New("Failed to fetch available domains.")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.New("Failed to fetch available domains.")
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.New("Failed to fetch available domains.")
	}

	type domain struct {
		Domain string `json:"domain"`
	}
	var list []domain
	if err := json.Unmarshal(raw, &list); err != nil {
		var hydra struct {
			Members []domain `json:"hydra:member"`
		}
		if err := json.Unmarshal(raw, &hydra); err != nil {
			return "", errors.New("Failed to fetch available domains.")
		}
		list = hydra.Members
	}
	if len(list) == 0 || list[0].Domain == "" {
		return "", errors.New("No available domains found.")
	}
	return list[0].Domain, nil
}

// Tool returns the create_temp_mail tool.
func Tool(c *Client) *tools.Tool {
	return &tools.Tool{
		Name:        ToolName,
		Description: "Creates a new temporary email account. Use this when the user asks for a temporary, disposable, or temp mail address. Takes no arguments.",
		Category:    tools.CategoryUtility,
		Priority:    40,
		Schema: tools.ToolSchema{
			Properties: map[string]tools.Property{},
		},
		Execute: func(ctx context.Context, _ map[string]any) (string, error) {
			acct, err := c.CreateAccount(ctx)
			if err != nil {
				logging.ToolsError("create_temp_mail failed: %v", err)
				return "Error: An unexpected error occurred while trying to create the temporary email. " + err.Error(), nil
			}
			logging.Tools("create_temp_mail: created mailbox on %s", acct.Address[strings.Index(acct.Address, "@")+1:])
			return Format(acct), nil
		},
	}
}

// Format renders the success message shown to the user.
func Format(a *Account) string {
	return "Success! Here is your temporary email account:\n" +
		"• **Email:** `" + a.Address + "`\n" +
		"• **Password:** `" + a.Password + "`\n\n" +
		"You can use this to sign up for services. I can check the inbox for you later if you ask."
}

func randomString(n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random string: %w", err)
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}
