package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	validatorpkg "github.com/okulsoft/absence-dispatch/pkg/validator"
)

func newUpdateClassContext(t *testing.T, classID, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	e.Validator = validatorpkg.New()

	req := httptest.NewRequest(http.MethodPut, "/api/v1/classes/"+classID+"/dispatch-config", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/classes/:id/dispatch-config")
	c.SetParamNames("id")
	c.SetParamValues(classID)

	return c, rec
}

func TestUpdateClassConfig_RejectsNonNumericID(t *testing.T) {
	handler := NewClassHandler(nil)

	c, rec := newUpdateClassContext(t, "5-a", `{"sendAfter": "09:15", "notifyEnabled": true}`)

	if err := handler.UpdateClassConfig(c); err != nil {
		t.Fatalf("UpdateClassConfig returned error: %v", err)
	}

	assertBadRequest(t, rec)
}

func TestUpdateClassConfig_RejectsBadSendAfter(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing send after", `{"notifyEnabled": true}`},
		{"not a time", `{"sendAfter": "quarter past nine", "notifyEnabled": true}`},
		{"hour out of range", `{"sendAfter": "25:00", "notifyEnabled": true}`},
		{"no colon", `{"sendAfter": "0915", "notifyEnabled": true}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Service is nil on purpose; validation must fail first.
			handler := NewClassHandler(nil)

			c, rec := newUpdateClassContext(t, "3", tc.body)

			if err := handler.UpdateClassConfig(c); err != nil {
				t.Fatalf("UpdateClassConfig returned error: %v", err)
			}

			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
			}

			var resp validatorpkg.ValidationErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal response body: %v", err)
			}
			if _, ok := resp.Details["sendAfter"]; !ok {
				t.Fatalf("expected Details to contain 'sendAfter' key, got %v", resp.Details)
			}
		})
	}
}
