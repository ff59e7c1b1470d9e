package feishu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

func TestChunk(t *testing.T) {
	tests := []struct {
		text string
		max  int
		want int
	}{
		{"", 10, 0},
		{"short", 10, 1},
		{strings.Repeat("a", 10), 10, 1},
		{strings.Repeat("a", 11), 10, 2},
		{strings.Repeat("a", 35), 10, 4},
		{strings.Repeat("价格", 7), 5, 3},
	}
	for _, tt := range tests {
		chunks := Chunk(tt.text, tt.max)
		if len(chunks) != tt.want {
			t.Errorf("Chunk(len=%d,%d) gave %d chunks, want %d", len(tt.text), tt.max, len(chunks), tt.want)
		}
		if strings.Join(chunks, "") != tt.text {
			t.Errorf("chunks do not reassemble the original text")
		}
		for _, c := range chunks {
			if utf8.RuneCountInString(c) > tt.max {
				t.Errorf("chunk longer than %d: %q", tt.max, c)
			}
		}
	}
}

type sink struct {
	mu       sync.Mutex
	texts    []string
	failFrom int
}

func (s *sink) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode: %v", err)
		}
		if msg.MsgType != "text" {
			t.Errorf("msg_type=%s", msg.MsgType)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.texts = append(s.texts, msg.Content.Text)
		if s.failFrom > 0 && len(s.texts) >= s.failFrom {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"code":0,"msg":"success"}`))
	}
}

func TestDispatchChunksWithKeyword(t *testing.T) {
	s := &sink{}
	srv := httptest.NewServer(s.handler(t))
	defer srv.Close()

	d := NewDispatcher(Config{WebhookURL: srv.URL, Keyword: "OI", MaxLength: 4}, nil)
	rep := d.Dispatch(context.Background(), "abcdefghij")
	if rep.Err != nil || rep.Chunks != 3 || rep.Sent != 3 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	want := []string{"OI abcd", "OI efgh", "OI ij"}
	for i, w := range want {
		if s.texts[i] != w {
			t.Errorf("message %d = %q, want %q", i, s.texts[i], w)
		}
	}
}

func TestDispatchFailFast(t *testing.T) {
	s := &sink{failFrom: 2}
	srv := httptest.NewServer(s.handler(t))
	defer srv.Close()

	d := NewDispatcher(Config{WebhookURL: srv.URL, MaxLength: 2}, nil)
	rep := d.Dispatch(context.Background(), "aabbccdd")
	if rep.Err == nil {
		t.Fatalf("expected error")
	}
	if rep.Chunks != 4 || rep.Sent != 1 || len(s.texts) != 2 {
		t.Fatalf("expected abort after second chunk: %+v, posted %d", rep, len(s.texts))
	}

	// the next batch is unaffected by the previous failure
	s.failFrom = 0
	if rep := d.Dispatch(context.Background(), "ok"); rep.Err != nil || rep.Sent != 1 {
		t.Errorf("next batch failed: %+v", rep)
	}
}

func TestDispatchWithoutWebhookIsNoop(t *testing.T) {
	d := NewDispatcher(Config{}, nil)
	if d.Enabled() {
		t.Fatalf("dispatcher without URL should be disabled")
	}
	if rep := d.Dispatch(context.Background(), "anything"); rep != (Report{}) {
		t.Errorf("expected empty report, got %+v", rep)
	}
}
