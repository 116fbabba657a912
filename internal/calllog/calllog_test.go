package calllog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type request struct {
	Method string
	Path   string
	Body   map[string]any
}

func recordingServer(t *testing.T, reply func(path string) (int, string)) (*httptest.Server, func() []request) {
	t.Helper()
	var mu sync.Mutex
	var got []request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(b, &body)
		mu.Lock()
		got = append(got, request{Method: r.Method, Path: r.URL.Path, Body: body})
		mu.Unlock()
		status, resp := reply(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []request {
		mu.Lock()
		defer mu.Unlock()
		return append([]request(nil), got...)
	}
}

func TestHTTPStoreEndpoints(t *testing.T) {
	srv, requests := recordingServer(t, func(path string) (int, string) {
		if path == "/api/v1/call_logs" {
			return http.StatusCreated, `{"success":true,"data":{"id":"01HX"}}`
		}
		return http.StatusOK, `{"success":true}`
	})
	s := NewHTTPStore(srv.URL + "/")
	ctx := context.Background()

	id, err := s.CreateCall(ctx, Call{StartedAt: time.Now(), FromNumber: "+8190", CallType: "inbound", Status: "in-progress", Provider: "twilio", ProviderCallSid: "CA1"})
	if err != nil || id != "01HX" {
		t.Fatalf("create = %q, %v", id, err)
	}
	if err := s.AppendMessage(ctx, id, Message{Role: "user", Content: "コシヒカリ"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.UpsertInquiry(ctx, NewInquiry(id, "コシヒカリ", 5, "", "", "")); err != nil {
		t.Fatalf("inquiry: %v", err)
	}
	if err := s.UpdateCall(ctx, id, CallUpdate{EndedAt: time.Now(), Status: "completed"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	reqs := requests()
	want := []struct{ method, path string }{
		{"POST", "/api/v1/call_logs"},
		{"POST", "/api/v1/call_logs/01HX/messages"},
		{"POST", "/api/v1/rice_inquiries"},
		{"PUT", "/api/v1/call_logs/01HX"},
	}
	if len(reqs) != len(want) {
		t.Fatalf("requests = %+v", reqs)
	}
	for i, w := range want {
		if reqs[i].Method != w.method || reqs[i].Path != w.path {
			t.Fatalf("request %d = %s %s, want %s %s", i, reqs[i].Method, reqs[i].Path, w.method, w.path)
		}
	}
	if reqs[0].Body["provider_call_sid"] != "CA1" || reqs[0].Body["to_number"] != nil {
		t.Fatalf("create body = %v", reqs[0].Body)
	}
	if reqs[2].Body["weight_kg"] != float64(5) || reqs[2].Body["delivery_address"] != nil {
		t.Fatalf("inquiry body = %v", reqs[2].Body)
	}
	if reqs[3].Body["status"] != "completed" {
		t.Fatalf("update body = %v", reqs[3].Body)
	}
}

func TestDataID(t *testing.T) {
	cases := map[string]string{
		`{"id":"abc"}`:                   "abc",
		`{"id":42}`:                      "42",
		`{"attributes":{"id":"nested"}}`: "nested",
		`{}`:                             "",
		`null`:                           "",
	}
	for raw, want := range cases {
		if got := dataID(json.RawMessage(raw)); got != want {
			t.Fatalf("dataID(%s) = %q, want %q", raw, got, want)
		}
	}
}

func TestHTTPStoreErrors(t *testing.T) {
	srv, _ := recordingServer(t, func(string) (int, string) {
		return http.StatusInternalServerError, `boom`
	})
	s := NewHTTPStore(srv.URL)
	_, err := s.CreateCall(context.Background(), Call{})
	var se *StatusError
	if !errors.As(err, &se) || se.Status != 500 {
		t.Fatalf("err = %v", err)
	}

	srv2, _ := recordingServer(t, func(string) (int, string) {
		return http.StatusCreated, `{"success":true,"data":{}}`
	})
	if _, err := NewHTTPStore(srv2.URL).CreateCall(context.Background(), Call{}); !errors.Is(err, ErrNoID) {
		t.Fatalf("err = %v", err)
	}
}

type fakeStore struct {
	mu       sync.Mutex
	ops      []string
	createID string
	failOn   string
	block    chan struct{}
}

func (f *fakeStore) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
	if op == f.failOn {
		return errors.New("fail")
	}
	return nil
}

func (f *fakeStore) CreateCall(ctx context.Context, c Call) (string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			_ = f.record("create:timeout")
			return "", ctx.Err()
		}
	}
	return f.createID, f.record("create")
}

func (f *fakeStore) UpdateCall(ctx context.Context, id string, u CallUpdate) error {
	return f.record("update:" + id + ":" + u.Status)
}

func (f *fakeStore) AppendMessage(ctx context.Context, id string, m Message) error {
	return f.record("message:" + id + ":" + m.Content)
}

func (f *fakeStore) UpsertInquiry(ctx context.Context, in Inquiry) error {
	return f.record("inquiry:" + in.CallID)
}

func (f *fakeStore) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestRecorderOrdersOperationsAfterCreate(t *testing.T) {
	store := &fakeStore{createID: "c1", failOn: "message:c1:二"}
	r := NewRecorder(store, time.Second, quietLog())
	r.CreateCall(Call{})
	r.AppendMessage(Message{Content: "一"})
	r.AppendMessage(Message{Content: "二"})
	r.UpsertInquiry(NewInquiry("", "ゆめぴりか", 0, "", "", ""))
	r.UpdateCall(CallUpdate{Status: "completed"})
	r.Close()

	got := strings.Join(store.snapshot(), ",")
	want := "create,message:c1:一,message:c1:二,inquiry:c1,update:c1:completed"
	if got != want {
		t.Fatalf("ops = %s, want %s", got, want)
	}
	r.AppendMessage(Message{Content: "late"})
	if len(store.snapshot()) != 5 {
		t.Fatalf("operations after Close must be dropped")
	}
}

func TestRecorderSkipsWithoutID(t *testing.T) {
	store := &fakeStore{block: make(chan struct{})}
	r := NewRecorder(store, 20*time.Millisecond, quietLog())
	r.CreateCall(Call{})
	r.AppendMessage(Message{Content: "x"})
	r.UpdateCall(CallUpdate{Status: "ended"})
	r.Close()
	got := store.snapshot()
	if len(got) != 1 || got[0] != "create:timeout" {
		t.Fatalf("ops = %v", got)
	}
}

func TestRecorderNilStore(t *testing.T) {
	r := NewRecorder(nil, time.Second, quietLog())
	r.CreateCall(Call{})
	r.AppendMessage(Message{Content: "x"})
	r.Close()
	r.Close()
}

func TestNewInquiryNulls(t *testing.T) {
	in := NewInquiry("c1", "", 0, "東京都", "", "玄米")
	if in.Brand != nil || in.WeightKg != nil || in.DeliveryDate != nil {
		t.Fatalf("zero values must be null: %+v", in)
	}
	if in.DeliveryAddress == nil || *in.DeliveryAddress != "東京都" || in.Note == nil || *in.Note != "玄米" {
		t.Fatalf("set values lost: %+v", in)
	}
}

func TestSupabaseStore(t *testing.T) {
	srv, requests := recordingServer(t, func(path string) (int, string) {
		if path == "/rest/v1/call_logs" {
			return http.StatusCreated, `[{"id":7}]`
		}
		return http.StatusCreated, ``
	})
	s, err := NewSupabaseStore(srv.URL, "service-key")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ctx := context.Background()
	id, err := s.CreateCall(ctx, Call{Provider: "twilio"})
	if err != nil || id != "7" {
		t.Fatalf("create = %q, %v", id, err)
	}
	if err := s.AppendMessage(ctx, id, Message{Role: "assistant", Content: "お電話ありがとうございます。"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.UpsertInquiry(ctx, NewInquiry(id, "コシヒカリ", 10, "", "", "")); err != nil {
		t.Fatalf("inquiry: %v", err)
	}
	reqs := requests()
	if len(reqs) != 3 {
		t.Fatalf("requests = %+v", reqs)
	}
	if reqs[1].Path != "/rest/v1/call_messages" || reqs[1].Body["call_id"] != "7" || reqs[1].Body["role"] != "assistant" {
		t.Fatalf("message request = %+v", reqs[1])
	}
	if reqs[2].Path != "/rest/v1/rice_inquiries" || reqs[2].Body["brand"] != "コシヒカリ" {
		t.Fatalf("inquiry request = %+v", reqs[2])
	}
}
