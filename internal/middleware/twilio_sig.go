package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/client"

	"github.com/chadiek/rice-call-gateway/internal/telephony"
)

// ParamsKey is the echo context key holding the validated form parameters.
const ParamsKey = "twilioParams"

// ValidSignature checks X-Twilio-Signature on r. Websocket upgrades are
// signed against the ws(s) URL, so both schemes are tried.
func ValidSignature(authToken, publicBaseURL string, r *http.Request, params map[string]string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if authToken == "" || signature == "" {
		return false
	}
	validator := client.NewRequestValidator(authToken)
	path := r.URL.RequestURI()
	for _, u := range []string{
		telephony.BuildAbsoluteURL(r, publicBaseURL, path),
		telephony.StreamURL(r, publicBaseURL, path),
	} {
		if validator.Validate(u, params, signature) {
			return true
		}
	}
	return false
}

// TwilioAuth validates Twilio webhook requests using the X-Twilio-Signature
// header. The signed URL is rebuilt from publicBaseURL when set, otherwise
// from the forwarded headers or Host.
func TwilioAuth(getAuthToken func() string, publicBaseURL string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authToken := getAuthToken()
			if authToken == "" {
				return c.String(http.StatusInternalServerError, "TWILIO_AUTH_TOKEN not configured")
			}

			req := c.Request()
			bodyBytes, err := io.ReadAll(req.Body)
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to read request body")
			}
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			formData, err := url.ParseQuery(string(bodyBytes))
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to parse form data")
			}
			params := make(map[string]string, len(formData))
			for key, values := range formData {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}

			if !ValidSignature(authToken, publicBaseURL, req, params) {
				c.Logger().Warnf("twilio signature rejected for %s", req.URL.RequestURI())
				return c.String(http.StatusUnauthorized, "Invalid Twilio signature")
			}

			c.Set(ParamsKey, params)
			return next(c)
		}
	}
}
