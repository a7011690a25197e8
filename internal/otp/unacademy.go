package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const unacademyURL = "https://unacademy.com/api/v3/user/user_check/?enable-email=true"

// Unacademy triggers the OTP used by the unacademy.com login check.
type Unacademy struct{}

func (Unacademy) Name() string { return "Unacademy" }

func (Unacademy) Request(ctx context.Context, phoneNumber string) (*http.Request, error) {
	payload := map[string]any{
		"phone":            phoneNumber,
		"country_code":     "IN",
		"otp_type":         1,
		"email":            "",
		"send_otp":         true,
		"is_un_teach_user": false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode unacademy payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, unacademyURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	applyHeaders(req, map[string]string{
		"Accept":         "*/*",
		"Content-Type":   "application/json",
		"Referer":        "https://unacademy.com/",
		"Origin":         "https://unacademy.com",
		"X-Platform":     "0",
		"Sec-Fetch-Site": "same-origin",
		"Priority":       "u=4",
	})
	return req, nil
}
