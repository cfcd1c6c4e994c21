package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/corval/docqa-service/internal/config"
	registrynotify "github.com/corval/docqa-service/internal/registry/notify"
)

const apiURL = "https://api.resend.com/emails"

func init() {
	registrynotify.Register(registrynotify.Plugin{
		Name:   "resend",
		Loader: load,
	})
}

func load(ctx context.Context) (registrynotify.Notifier, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.ResendAPIKey == "" {
		return nil, fmt.Errorf("resend: DOCQA_SERVICE_RESEND_API_KEY is required")
	}
	if cfg.NotifyFromEmail == "" {
		return nil, fmt.Errorf("resend: DOCQA_SERVICE_NOTIFY_FROM_EMAIL is required")
	}
	return &ResendNotifier{apiKey: cfg.ResendAPIKey, from: cfg.NotifyFromEmail}, nil
}

// ResendNotifier sends email through the Resend HTTP API.
type ResendNotifier struct {
	apiKey string
	from   string
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

func (n *ResendNotifier) Send(ctx context.Context, msg registrynotify.Message) error {
	reqBody, err := json.Marshal(sendRequest{
		From:    n.from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("resend: send request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var result sendResponse
		if json.Unmarshal(body, &result) == nil && result.Message != "" {
			return fmt.Errorf("resend: %s (status %d)", result.Message, resp.StatusCode)
		}
		return fmt.Errorf("resend: unexpected status %d", resp.StatusCode)
	}
	return nil
}
