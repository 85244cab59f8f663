package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"LinkProject/tools/errs"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func webhookAPI(enqueued *[][]byte) *API {
	return &API{
		WebhookSecret: "s3cret",
		Enqueue: func(_ string, raw []byte) error {
			*enqueued = append(*enqueued, raw)
			return nil
		},
	}
}

func postWebhook(a *API, secret, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/provider", strings.NewReader(body))
	if secret != "" {
		req.Header.Set(HeaderWebhookSecret, secret)
	}
	a.Router().ServeHTTP(w, req)
	return w
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	var enqueued [][]byte
	a := webhookAPI(&enqueued)

	if w := postWebhook(a, "", `{"type":"chat.read"}`); w.Code != http.StatusForbidden {
		t.Errorf("missing secret: status %d, want 403", w.Code)
	}
	if w := postWebhook(a, "wrong", `{"type":"chat.read"}`); w.Code != http.StatusForbidden {
		t.Errorf("wrong secret: status %d, want 403", w.Code)
	}
	if len(enqueued) != 0 {
		t.Error("rejected webhook must not enqueue")
	}
}

func TestWebhookRejectsBadEnvelope(t *testing.T) {
	var enqueued [][]byte
	a := webhookAPI(&enqueued)

	if w := postWebhook(a, "s3cret", "not json"); w.Code != http.StatusBadRequest {
		t.Errorf("bad json: status %d, want 400", w.Code)
	}
	if w := postWebhook(a, "s3cret", `{"account_id":"x"}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing type: status %d, want 400", w.Code)
	}
	if len(enqueued) != 0 {
		t.Error("rejected webhook must not enqueue")
	}
}

func TestWebhookEnqueues(t *testing.T) {
	var enqueued [][]byte
	a := webhookAPI(&enqueued)

	w := postWebhook(a, "s3cret", `{"id":"e1","type":"chat.read","account_id":"abc"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status %d, want 202", w.Code)
	}
	if len(enqueued) != 1 {
		t.Fatalf("want 1 enqueued event, got %d", len(enqueued))
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		code int
		want int
	}{
		{errs.ArgsError, http.StatusBadRequest},
		{errs.RecordNotFoundError, http.StatusNotFound},
		{errs.NoPermissionError, http.StatusForbidden},
		{errs.ContactLimitError, http.StatusForbidden},
		{errs.ChatReadOnlyError, http.StatusForbidden},
		{errs.SendRejectedError, http.StatusBadGateway},
		{errs.ProviderAuthError, http.StatusBadGateway},
		{errs.ProviderTransientError, http.StatusServiceUnavailable},
		{errs.ServerInternalError, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := httpStatusOf(c.code); got != c.want {
			t.Errorf("httpStatusOf(%d) = %d, want %d", c.code, got, c.want)
		}
	}
}
