package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

// sign computes the signature the way Twilio documents it: URL followed by
// the sorted POST parameters, HMAC-SHA1 with the auth token.
func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data := fullURL
	for _, k := range keys {
		data += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func serve(t *testing.T, token, base string, req *http.Request) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	e := echo.New()
	var got map[string]string
	h := TwilioAuth(func() string { return token }, base)(func(c echo.Context) error {
		got, _ = c.Get(ParamsKey).(map[string]string)
		if err := c.Request().ParseForm(); err != nil || c.FormValue("From") == "" {
			t.Fatalf("body not restored for the handler")
		}
		return c.NoContent(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	return rec, got
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestTwilioAuthAcceptsSignedRequest(t *testing.T) {
	form := url.Values{"From": {"+819012345678"}, "CallSid": {"CA1"}}
	req := formRequest("/twilio/voice?address=tokyo", form)
	req.Host = "gw.example.test"
	req.Header.Set("X-Twilio-Signature", sign("tok", "https://public.example.test/twilio/voice?address=tokyo", form))

	rec, params := serve(t, "tok", "https://public.example.test", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if params["CallSid"] != "CA1" {
		t.Fatalf("params = %v", params)
	}
}

func TestTwilioAuthRejects(t *testing.T) {
	form := url.Values{"From": {"+819012345678"}}

	req := formRequest("/twilio/voice", form)
	req.Header.Set("X-Twilio-Signature", sign("other", "https://example.com/twilio/voice", form))
	if rec, _ := serve(t, "tok", "https://example.com", req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d", rec.Code)
	}

	req = formRequest("/twilio/voice", form)
	if rec, _ := serve(t, "tok", "https://example.com", req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing signature status = %d", rec.Code)
	}

	req = formRequest("/twilio/voice", form)
	if rec, _ := serve(t, "", "", req); rec.Code != http.StatusInternalServerError {
		t.Fatalf("unconfigured status = %d", rec.Code)
	}
}

func TestValidSignatureOnStreamUpgrade(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/media-stream", nil)
	req.Host = "gw.example.test"
	req.Header.Set("X-Twilio-Signature", sign("tok", "wss://gw.example.test/media-stream", nil))
	if !ValidSignature("tok", "", req, map[string]string{}) {
		t.Fatalf("wss-signed upgrade rejected")
	}
	if ValidSignature("", "", req, nil) {
		t.Fatalf("accepted without a token")
	}
}
