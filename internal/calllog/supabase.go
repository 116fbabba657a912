package calllog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/supabase-community/supabase-go"
)

// Supabase table names.
const (
	TableCalls     = "call_logs"
	TableMessages  = "call_messages"
	TableInquiries = "rice_inquiries"
)

// SupabaseStore writes call logs straight into Postgres through PostgREST.
type SupabaseStore struct {
	client *supabase.Client
}

func NewSupabaseStore(url, serviceRoleKey string) (*SupabaseStore, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("calllog: supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

type messageRow struct {
	CallID string `json:"call_id"`
	Message
}

// run executes a PostgREST request. The client has no context support, so
// ctx only bounds the wait.
func run(ctx context.Context, op string, exec func() ([]byte, error)) ([]byte, error) {
	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		b, err := exec()
		done <- result{b, err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("calllog %s: %w", op, r.err)
		}
		return r.body, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("calllog %s: %w", op, ctx.Err())
	}
}

func (s *SupabaseStore) CreateCall(ctx context.Context, c Call) (string, error) {
	body, err := run(ctx, "create call", func() ([]byte, error) {
		b, _, err := s.client.From(TableCalls).Insert(c, false, "", "representation", "").Execute()
		return b, err
	})
	if err != nil {
		return "", err
	}
	var rows []struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return "", fmt.Errorf("calllog create call: decode: %w", err)
	}
	if len(rows) == 0 || idString(rows[0].ID) == "" {
		return "", ErrNoID
	}
	return idString(rows[0].ID), nil
}

func (s *SupabaseStore) UpdateCall(ctx context.Context, id string, u CallUpdate) error {
	_, err := run(ctx, "update call", func() ([]byte, error) {
		b, _, err := s.client.From(TableCalls).Update(u, "minimal", "").Eq("id", id).Execute()
		return b, err
	})
	return err
}

func (s *SupabaseStore) AppendMessage(ctx context.Context, id string, m Message) error {
	_, err := run(ctx, "append message", func() ([]byte, error) {
		b, _, err := s.client.From(TableMessages).Insert(messageRow{CallID: id, Message: m}, false, "", "minimal", "").Execute()
		return b, err
	})
	return err
}

func (s *SupabaseStore) UpsertInquiry(ctx context.Context, in Inquiry) error {
	_, err := run(ctx, "upsert inquiry", func() ([]byte, error) {
		b, _, err := s.client.From(TableInquiries).Insert(in, true, "call_id", "minimal", "").Execute()
		return b, err
	})
	return err
}
