package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const hungamaURL = "https://chcommunication.api.hungama.com/v1/communication/otp"

// Hungama triggers the OTP used by the hungama.com registration flow.
type Hungama struct {
	CountryCode string
}

func (Hungama) Name() string { return "Hungama" }

func (p Hungama) Request(ctx context.Context, phoneNumber string) (*http.Request, error) {
	payload := map[string]any{
		"mobileNo":     phoneNumber,
		"countryCode":  p.CountryCode,
		"appCode":      "un",
		"messageId":    "1",
		"emailId":      "",
		"subject":      "Register",
		"priority":     "1",
		"device":       "web",
		"variant":      "v1",
		"templateCode": 1,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode hungama payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hungamaURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	applyHeaders(req, map[string]string{
		"Accept":         "application/json, text/plain, */*",
		"Content-Type":   "application/json",
		"Referer":        "https://www.hungama.com/",
		"Origin":         "https://www.hungama.com",
		"identifier":     "home",
		"mlang":          "en",
		"vlang":          "en",
		"alang":          "en",
		"country_code":   "IN",
		"Sec-Fetch-Site": "same-site",
		"Priority":       "u=0",
	})
	return req, nil
}
