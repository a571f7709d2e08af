// internal/transport/invoker_test.go
package transport

import (
	"errors"
	"net/http"
	"testing"

	"github.com/pagebound/scrape/pkg/models"
)

func failedResponse(code models.ErrorCode) *models.ScrapeResponse {
	return &models.ScrapeResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: code, Message: "boom"},
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		code models.ErrorCode
		want int
	}{
		{models.ErrCodeInvalidRequest, http.StatusBadRequest},
		{models.ErrCodeInvalidRule, http.StatusBadRequest},
		{models.ErrCodeTimeout, http.StatusGatewayTimeout},
		{models.ErrCodeStepTimeout, http.StatusGatewayTimeout},
		{models.ErrCodeNavigation, http.StatusBadGateway},
		{models.ErrCodeDriverUnavailable, http.StatusBadGateway},
		{models.ErrCodePoolExhausted, http.StatusServiceUnavailable},
		{models.ErrCodeCancelled, 499},
		{models.ErrCodeMissingField, http.StatusUnprocessableEntity},
		{models.ErrCodeRetriesExhausted, http.StatusUnprocessableEntity},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusOf(failedResponse(tc.code)); got != tc.want {
			t.Errorf("StatusOf(%s) = %d, want %d", tc.code, got, tc.want)
		}
	}

	if got := StatusOf(&models.ScrapeResponse{Success: true}); got != http.StatusOK {
		t.Errorf("Successful response mapped to %d, want 200", got)
	}
	if got := StatusOf(&models.ScrapeResponse{}); got != http.StatusInternalServerError {
		t.Errorf("Failure without detail mapped to %d, want 500", got)
	}
}

func TestToDetail(t *testing.T) {
	se := models.NewScrapeError(models.ErrCodeStepTimeout, "step 2 timed out", nil).
		AsTransient().
		WithDetail("step", 2)

	d := toDetail(se)
	if d.Code != models.ErrCodeStepTimeout || !d.Transient {
		t.Errorf("Classified error lost its shape: %+v", d)
	}
	if d.Details["step"] != 2 {
		t.Errorf("Details lost: %+v", d.Details)
	}

	d = toDetail(errors.New("socket closed"))
	if d.Code != models.ErrCodeNavigation {
		t.Errorf("Unclassified error should map to NAVIGATION_FAILED, got %s", d.Code)
	}
}
