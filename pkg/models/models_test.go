// pkg/models/models_test.go
package models

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func strptr(s string) *string { return &s }

func TestFields_MarshalJSONPreservesOrder(t *testing.T) {
	fields := Fields{
		{Name: "zebra", Single: strptr("z")},
		{Name: "apple", List: []string{"a", "b"}},
		{Name: "gone"},
	}

	data, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"zebra":"z","apple":["a","b"],"gone":null}`
	if string(data) != want {
		t.Errorf("Got %s, want %s", data, want)
	}
}

func TestFields_UnmarshalJSONRoundTrip(t *testing.T) {
	var fs Fields
	if err := json.Unmarshal([]byte(`{"zebra":"z","apple":["a","b"],"gone":null}`), &fs); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(fs) != 3 || fs[0].Name != "zebra" || fs[1].Name != "apple" || fs[2].Name != "gone" {
		t.Fatalf("Order lost: %+v", fs)
	}
	if fs[0].Single == nil || *fs[0].Single != "z" {
		t.Errorf("Single value lost: %+v", fs[0])
	}
	if len(fs[1].List) != 2 {
		t.Errorf("List value lost: %+v", fs[1])
	}
	if !fs[2].Absent() {
		t.Errorf("Null should decode as absent: %+v", fs[2])
	}
}

func TestFields_Get(t *testing.T) {
	fields := Fields{{Name: "title", Single: strptr("x")}}
	if _, ok := fields.Get("title"); !ok {
		t.Error("Expected to find 'title'")
	}
	if _, ok := fields.Get("other"); ok {
		t.Error("Did not expect to find 'other'")
	}
}

func TestScrapeError_CodeMatchingAndUnwrap(t *testing.T) {
	inner := errors.New("socket closed")
	err := NewScrapeError(ErrCodeNavigation, "page load failed", inner).AsTransient()

	if !errors.Is(err, &ScrapeError{Code: ErrCodeNavigation}) {
		t.Error("Expected code-based matching")
	}
	if errors.Is(err, &ScrapeError{Code: ErrCodeTimeout}) {
		t.Error("Matched the wrong code")
	}
	if !errors.Is(err, inner) {
		t.Error("Expected unwrap to reach the underlying error")
	}
	if !IsTransient(err) {
		t.Error("Expected transient")
	}
	if IsTransient(errors.New("plain")) {
		t.Error("Unclassified errors must be permanent")
	}
}

func TestFromContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()
	if FromContext(ctx).Code != ErrCodeTimeout {
		t.Error("Deadline should map to TIMEOUT")
	}

	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	if FromContext(ctx2).Code != ErrCodeCancelled {
		t.Error("Cancellation should map to CANCELLED")
	}
}

func TestExhausted(t *testing.T) {
	last := NewScrapeError(ErrCodePoolExhausted, "busy", nil).AsTransient()
	err := Exhausted(4, last)
	if err.Code != ErrCodeRetriesExhausted {
		t.Errorf("Expected RETRIES_EXHAUSTED, got %s", err.Code)
	}
	if err.Details["attempts"] != 4 {
		t.Errorf("Expected attempts detail 4, got %v", err.Details["attempts"])
	}
	if CodeOf(err.Underlying) != ErrCodePoolExhausted {
		t.Error("Last error not preserved")
	}
}
