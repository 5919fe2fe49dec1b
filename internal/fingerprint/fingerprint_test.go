package fingerprint

import (
	"errors"
	"testing"

	"github.com/faultlinehq/faultline/internal/models"
)

func errorEvent(message string, metadata map[string]any) *models.Event {
	return &models.Event{
		ID:          "evt-1",
		Timestamp:   1000,
		EventType:   models.EventTypeError,
		ServiceName: "checkout",
		Message:     message,
		Metadata:    metadata,
	}
}

func TestGenerateDeterministic(t *testing.T) {
	meta := map[string]any{
		"errorStack": "Error: boom\n    at handleCart (cart.js:10)\n    at run (main.js:2)",
		"route":      "/api/cart",
	}

	first, err := Generate(errorEvent("boom", meta))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := Generate(errorEvent("boom", meta))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first != second {
		t.Fatalf("identical inputs produced different fingerprints: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(first))
	}
}

func TestGenerateDistinguishesInputs(t *testing.T) {
	base := errorEvent("connection refused", map[string]any{"route": "/api/cart"})
	baseFP, err := Generate(base)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	variants := []*models.Event{
		errorEvent("connection reset", map[string]any{"route": "/api/cart"}),
		errorEvent("connection refused", map[string]any{"route": "/api/checkout"}),
		errorEvent("connection refused", map[string]any{
			"route":      "/api/cart",
			"errorStack": "Error: x\n    at pay (pay.js:3)",
		}),
	}
	for i, variant := range variants {
		fp, err := Generate(variant)
		if err != nil {
			t.Fatalf("variant %d: %v", i, err)
		}
		if fp == baseFP {
			t.Fatalf("variant %d collided with base fingerprint", i)
		}
	}
}

func TestGenerateRejectsNonErrorEvents(t *testing.T) {
	event := &models.Event{EventType: models.EventTypeDeploy, ServiceName: "checkout"}
	if _, err := Generate(event); !errors.Is(err, models.ErrInvalidEventType) {
		t.Fatalf("expected ErrInvalidEventType, got %v", err)
	}
}

func TestTopStackFrame(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]any
		want     string
	}{
		{
			name: "second frame function",
			metadata: map[string]any{
				"errorStack": "TypeError: nil deref\n    at CartService.total (cart.js:42:7)\n    at main (app.js:1)",
			},
			want: "CartService.total",
		},
		{
			name: "blank lines skipped",
			metadata: map[string]any{
				"errorStack": "Error: boom\n\n    at resolve (db.js:9)\n",
			},
			want: "resolve",
		},
		{name: "nil metadata", metadata: nil, want: ""},
		{name: "missing stack", metadata: map[string]any{"other": "x"}, want: ""},
		{name: "non-string stack", metadata: map[string]any{"errorStack": 42}, want: ""},
		{
			name:     "single line stack",
			metadata: map[string]any{"errorStack": "Error: boom"},
			want:     "",
		},
		{
			name: "no at marker",
			metadata: map[string]any{
				"errorStack": "Error: boom\n    somewhere deep",
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TopStackFrame(tt.metadata); got != tt.want {
				t.Fatalf("TopStackFrame() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]any
		message  string
		want     string
	}{
		{
			name:     "metadata route wins",
			metadata: map[string]any{"route": "/api/cart"},
			message:  "GET /other failed",
			want:     "/api/cart",
		},
		{
			name:    "extracted from message",
			message: "request POST /api/orders returned 500",
			want:    "/api/orders",
		},
		{
			name:    "method match is case insensitive",
			message: "get /api/items timed out",
			want:    "/api/items",
		},
		{
			name:     "non-string metadata route falls back",
			metadata: map[string]any{"route": 7},
			message:  "DELETE /api/users/9 failed",
			want:     "/api/users/9",
		},
		{name: "no route", message: "null pointer exception", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Route(tt.metadata, tt.message); got != tt.want {
				t.Fatalf("Route() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserID(t *testing.T) {
	if got := UserID(map[string]any{"userId": "u-1"}); got != "u-1" {
		t.Fatalf("userId not extracted, got %q", got)
	}
	if got := UserID(map[string]any{"user_id": "u-2"}); got != "u-2" {
		t.Fatalf("user_id not extracted, got %q", got)
	}
	if got := UserID(map[string]any{"userId": 5}); got != "" {
		t.Fatalf("expected empty for non-string userId, got %q", got)
	}
	if got := UserID(nil); got != "" {
		t.Fatalf("expected empty for nil metadata, got %q", got)
	}
}
