// Package api is a thin typed wrapper around the SajiloKaam messaging REST
// API. It owns no state beyond the HTTP client; all responses are normalized
// into the canonical model shapes before they are returned.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sudip6164/sajilokaam-sub003/internal/models"
)

// Client talks to the messaging endpoints of the marketplace backend.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a REST client for the given backend. The token is the
// user's bearer token from the auth context.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// doRequest executes one HTTP request against the messaging API. It adds
// authentication headers, encodes the body as JSON and returns the raw
// response body, converting any status >= 400 into an error.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	reqURL := fmt.Sprintf("%s/api/%s", c.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// ListConversations retrieves the user's conversation list.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "conversations", nil)
	if err != nil {
		return nil, err
	}

	var resp models.ListConversationsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse conversations: %w", err)
	}

	return resp.Conversations, nil
}

// ListMessages retrieves a conversation's full message history. This fetch is
// the only authority for history; the push channel never replays past events.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	endpoint := fmt.Sprintf("conversations/%s/messages", url.PathEscape(conversationID))
	respBody, err := c.doRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var resp models.ListMessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse messages: %w", err)
	}

	messages := make([]models.Message, 0, len(resp.Messages))
	for _, w := range resp.Messages {
		messages = append(messages, w.Canonical())
	}
	return messages, nil
}

// SendMessage posts a new message and returns its server-confirmed form
// carrying the authoritative id.
func (c *Client) SendMessage(ctx context.Context, conversationID string, req models.SendMessageRequest) (models.Message, error) {
	endpoint := fmt.Sprintf("conversations/%s/messages", url.PathEscape(conversationID))
	respBody, err := c.doRequest(ctx, http.MethodPost, endpoint, req)
	if err != nil {
		return models.Message{}, err
	}

	var wire models.WireMessage
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return models.Message{}, fmt.Errorf("failed to parse sent message: %w", err)
	}
	return wire.Canonical(), nil
}

// EditMessage changes a message's content and returns the updated message.
func (c *Client) EditMessage(ctx context.Context, conversationID string, messageID int64, content string) (models.Message, error) {
	endpoint := fmt.Sprintf("conversations/%s/messages/%s",
		url.PathEscape(conversationID), strconv.FormatInt(messageID, 10))
	respBody, err := c.doRequest(ctx, http.MethodPut, endpoint, models.EditMessageRequest{Content: content})
	if err != nil {
		return models.Message{}, err
	}

	var wire models.WireMessage
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return models.Message{}, fmt.Errorf("failed to parse edited message: %w", err)
	}
	return wire.Canonical(), nil
}

// DeleteMessage soft-deletes a message. The server keeps the entry and marks
// it deleted; connected clients learn about it via the push channel.
func (c *Client) DeleteMessage(ctx context.Context, conversationID string, messageID int64) error {
	endpoint := fmt.Sprintf("conversations/%s/messages/%s",
		url.PathEscape(conversationID), strconv.FormatInt(messageID, 10))
	_, err := c.doRequest(ctx, http.MethodDelete, endpoint, nil)
	return err
}

// DeleteConversation removes a conversation and all of its messages.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	endpoint := fmt.Sprintf("conversations/%s", url.PathEscape(conversationID))
	_, err := c.doRequest(ctx, http.MethodDelete, endpoint, nil)
	return err
}
