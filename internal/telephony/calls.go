package telephony

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrNoCredentials is returned when the REST client has no account credentials.
var ErrNoCredentials = errors.New("telephony: missing TWILIO_ACCOUNT_SID or TWILIO_AUTH_TOKEN")

type callUpdater interface {
	UpdateCall(sid string, params *twilioApi.UpdateCallParams) (*twilioApi.ApiV2010Call, error)
}

// Calls controls live calls through the REST API.
type Calls struct {
	api callUpdater
}

// NewCalls returns a REST client, or nil when credentials are missing.
func NewCalls(accountSID, authToken string) *Calls {
	if accountSID == "" || authToken == "" {
		return nil
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Calls{api: client.Api}
}

// Hangup completes an in-progress call. The SDK call is not cancellable, so
// ctx only bounds how long we wait for it.
func (c *Calls) Hangup(ctx context.Context, callSid string) error {
	if c == nil || c.api == nil {
		return ErrNoCredentials
	}
	if callSid == "" {
		return errors.New("telephony: hangup without call sid")
	}
	params := &twilioApi.UpdateCallParams{}
	params.SetStatus("completed")

	done := make(chan error, 1)
	go func() {
		_, err := c.api.UpdateCall(callSid, params)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telephony: hangup %s: %w", callSid, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telephony: hangup %s: %w", callSid, ctx.Err())
	}
}
