package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"harvester/internal/config"
	"harvester/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTaskCompleted, notifications.Payload{"id": "FC2-PPV-1"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	title, body, tags, priority string
}

func newCaptureServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, captured{
			title:    r.Header.Get("Title"),
			body:     string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		out := make([]captured, len(seen))
		copy(out, seen)
		return out
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectBody     string
		expectTags     string
		expectPriority string
	}{
		{
			name:        "task completed",
			event:       notifications.EventTaskCompleted,
			payload:     notifications.Payload{"id": "FC2-PPV-123", "title": "Clip"},
			expectTitle: "Harvester - Uploaded",
			expectBody:  "Uploaded FC2-PPV-123: Clip",
			expectTags:  "harvester,upload,completed",
		},
		{
			name:           "task failed",
			event:          notifications.EventTaskFailed,
			payload:        notifications.Payload{"id": "FC2-PPV-9", "error": "source gone: 404", "reason": "fatal failure"},
			expectTitle:    "Harvester - Task Failed",
			expectBody:     "FC2-PPV-9 failed: source gone: 404\nfatal failure",
			expectTags:     "harvester,error,alert",
			expectPriority: "high",
		},
		{
			name:        "cycle finished",
			event:       notifications.EventCycleFinished,
			payload:     notifications.Payload{"admitted": 3, "processed": 2, "failed": 1, "duration": 90 * time.Second},
			expectTitle: "Harvester - Cycle Finished",
			expectBody:  "Cycle finished: 3 admitted, 2 processed, 1 failed in 1m30s",
			expectTags:  "harvester,cycle,completed",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "Harvester - Test",
			expectBody:     "Notification system test",
			expectTags:     "harvester,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, seen := newCaptureServer(t)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = srv.URL
			svc := notifications.NewService(&cfg)

			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("Publish failed: %v", err)
			}
			got := seen()
			if len(got) != 1 {
				t.Fatalf("expected 1 request, got %d", len(got))
			}
			if got[0].title != tc.expectTitle {
				t.Errorf("title = %q, want %q", got[0].title, tc.expectTitle)
			}
			if got[0].body != tc.expectBody {
				t.Errorf("body = %q, want %q", got[0].body, tc.expectBody)
			}
			if got[0].tags != tc.expectTags {
				t.Errorf("tags = %q, want %q", got[0].tags, tc.expectTags)
			}
			if got[0].priority != tc.expectPriority {
				t.Errorf("priority = %q, want %q", got[0].priority, tc.expectPriority)
			}
		})
	}
}

func TestDisabledEventsAreSkipped(t *testing.T) {
	srv, seen := newCaptureServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.Cycle = false
	svc := notifications.NewService(&cfg)

	if err := svc.Publish(context.Background(), notifications.EventCycleStarted, nil); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if n := len(seen()); n != 0 {
		t.Fatalf("expected disabled event to be skipped, got %d requests", n)
	}
}

func TestNtfyErrorStatusIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
