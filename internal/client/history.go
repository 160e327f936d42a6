package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"pharmacy-chat-service/internal/models"
)

// HistoryOptions narrows a history fetch. Zero values mean the full
// backlog.
type HistoryOptions struct {
	BeforeID int
	Limit    int
}

// HistoryLoader fetches the persisted backlog for a conversation,
// oldest first. Idempotent: calling again returns a superset-consistent
// result with no duplicates within one call.
type HistoryLoader interface {
	Load(ctx context.Context, customerID, pharmacistID int, opts HistoryOptions) ([]models.ChatMessage, error)
}

// PresenceLoader fetches the online pharmacist snapshot over REST.
// Clients use it to seed the directory before the session channel
// delivers its first presence event.
type PresenceLoader interface {
	LoadPresence(ctx context.Context) ([]models.PresenceEntry, error)
}

// HTTPHistoryLoader loads history over the chat service's REST API. The
// customer identity is carried by the token, so only the pharmacist id
// appears in the request.
type HTTPHistoryLoader struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func (l *HTTPHistoryLoader) Load(ctx context.Context, customerID, pharmacistID int, opts HistoryOptions) ([]models.ChatMessage, error) {
	httpClient := l.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	endpoint := fmt.Sprintf("%s/conversations/%d/messages", strings.TrimRight(l.BaseURL, "/"), pharmacistID)
	query := url.Values{}
	if opts.BeforeID > 0 {
		query.Set("before_id", strconv.Itoa(opts.BeforeID))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
	if l.Token != "" {
		req.Header.Set("Authorization", "Bearer "+l.Token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrHistoryUnavailable, resp.StatusCode)
	}

	var body struct {
		Messages []models.ChatMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
	return body.Messages, nil
}

// LoadPresence fetches the online pharmacist snapshot.
func (l *HTTPHistoryLoader) LoadPresence(ctx context.Context) ([]models.PresenceEntry, error) {
	httpClient := l.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	endpoint := strings.TrimRight(l.BaseURL, "/") + "/pharmacists/online"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPresenceUnavailable, err)
	}
	if l.Token != "" {
		req.Header.Set("Authorization", "Bearer "+l.Token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPresenceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrPresenceUnavailable, resp.StatusCode)
	}

	var body struct {
		Pharmacists []models.PresenceEntry `json:"pharmacists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPresenceUnavailable, err)
	}
	return body.Pharmacists, nil
}
