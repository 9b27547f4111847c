package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"ferry/internal/config"
	"ferry/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyArchiveCompleted(context.Background(), "takeout-001.zip"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		notify         func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "archive completed",
			notify: func(svc notifications.Service) error {
				return svc.NotifyArchiveCompleted(context.Background(), "takeout-20260101-001.zip")
			},
			expectTitle:   "Ferry - Archive Complete",
			expectMessage: "Archive migrated and cleaned: takeout-20260101-001.zip",
			expectTags:    "ferry,archive,completed",
		},
		{
			name: "archive corrupted",
			notify: func(svc notifications.Service) error {
				return svc.NotifyArchiveCorrupted(context.Background(), "takeout-002.zip", "zip central directory unreadable")
			},
			expectTitle:    "Ferry - Archive Corrupted",
			expectMessage:  "Archive parked as corrupted: takeout-002.zip\nReason: zip central directory unreadable",
			expectTags:     "ferry,archive,corrupted",
			expectPriority: "high",
		},
		{
			name: "pipeline paused",
			notify: func(svc notifications.Service) error {
				return svc.NotifyPipelinePaused(context.Background(), "item failure rate above threshold")
			},
			expectTitle:    "Ferry - Paused",
			expectMessage:  "Cleanup paused: item failure rate above threshold\nUse `ferry resume` after review",
			expectTags:     "ferry,pipeline,paused",
			expectPriority: "high",
		},
		{
			name: "error",
			notify: func(svc notifications.Service) error {
				return svc.NotifyError(context.Background(), errors.New("bucket listing failed"), "discovery")
			},
			expectTitle:    "Ferry - Error",
			expectMessage:  "Error with discovery: bucket listing failed",
			expectTags:     "ferry,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := tc.notify(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	err := svc.TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
