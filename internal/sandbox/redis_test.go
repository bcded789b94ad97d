package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/unicon/grader-go/pkg/types"
)

func TestReplyWaitUsesRequestBudget(t *testing.T) {
	grace := 2 * time.Second

	if got := replyWait(context.Background(), 5, grace); got != 7*time.Second {
		t.Fatalf("wait = %v, want 7s", got)
	}

	// A distant caller deadline leaves the request's own budget intact.
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(time.Hour))
	defer cancel()
	if got := replyWait(ctx, 5, grace); got != 7*time.Second {
		t.Fatalf("wait = %v, want 7s under a distant deadline", got)
	}
}

func TestReplyWaitClampsToCallerDeadline(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(time.Second))
	defer cancel()

	got := replyWait(ctx, 5, 2*time.Second)
	if got <= 0 || got > time.Second {
		t.Fatalf("wait = %v, want positive and at most 1s", got)
	}
}

func TestReplyWaitExpiredDeadline(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	if got := replyWait(ctx, 5, 2*time.Second); got > 0 {
		t.Fatalf("wait = %v for an already-expired deadline, want <= 0", got)
	}
}

func TestDecodeReply(t *testing.T) {
	resp, err := decodeReply("req-1", []byte(`{"id":"req-1","status":"OK","value":7}`))
	if err != nil {
		t.Fatalf("decodeReply: %v", err)
	}
	if resp.Status != types.RunnerStatusOK {
		t.Errorf("status = %s, want OK", resp.Status)
	}
	if resp.Value != 7.0 {
		t.Errorf("value = %v, want 7", resp.Value)
	}

	// Replies without an ID are accepted.
	if _, err := decodeReply("req-1", []byte(`{"status":"RTE","error":"boom"}`)); err != nil {
		t.Errorf("reply without ID rejected: %v", err)
	}
}

func TestDecodeReplyRejectsMismatchedID(t *testing.T) {
	_, err := decodeReply("req-1", []byte(`{"id":"req-2","status":"OK"}`))
	if err == nil {
		t.Fatal("expected error for mismatched reply ID")
	}
	if !strings.Contains(err.Error(), "correlation") {
		t.Errorf("error = %v, want correlation mismatch", err)
	}
}

func TestDecodeReplyRejectsMalformedPayload(t *testing.T) {
	if _, err := decodeReply("req-1", []byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
