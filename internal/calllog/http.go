package calllog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// StatusError is a non-2xx reply from the log API.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("calllog %s: status=%d body=%s", e.Path, e.Status, e.Body)
}

// HTTPStore writes to the call log REST API (/api/v1/call_logs...).
type HTTPStore struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: &http.Client{}}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func (s *HTTPStore) do(ctx context.Context, method, path string, in any) (envelope, error) {
	var env envelope
	body, err := json.Marshal(in)
	if err != nil {
		return env, err
	}
	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return env, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return env, fmt.Errorf("calllog %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return env, &StatusError{Path: path, Status: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return env, fmt.Errorf("calllog %s: decode: %w", path, err)
	}
	return env, nil
}

func (s *HTTPStore) CreateCall(ctx context.Context, c Call) (string, error) {
	env, err := s.do(ctx, http.MethodPost, "/api/v1/call_logs", c)
	if err != nil {
		return "", err
	}
	id := dataID(env.Data)
	if id == "" {
		return "", ErrNoID
	}
	return id, nil
}

func (s *HTTPStore) UpdateCall(ctx context.Context, id string, u CallUpdate) error {
	_, err := s.do(ctx, http.MethodPut, "/api/v1/call_logs/"+url.PathEscape(id), u)
	return err
}

func (s *HTTPStore) AppendMessage(ctx context.Context, id string, m Message) error {
	_, err := s.do(ctx, http.MethodPost, "/api/v1/call_logs/"+url.PathEscape(id)+"/messages", m)
	return err
}

func (s *HTTPStore) UpsertInquiry(ctx context.Context, in Inquiry) error {
	_, err := s.do(ctx, http.MethodPost, "/api/v1/rice_inquiries", in)
	return err
}

// dataID reads data.id or data.attributes.id; ids may be strings or numbers.
func dataID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var data struct {
		ID         any `json:"id"`
		Attributes struct {
			ID any `json:"id"`
		} `json:"attributes"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return ""
	}
	if id := idString(data.ID); id != "" {
		return id
	}
	return idString(data.Attributes.ID)
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	return ""
}
