package otp

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const shemarooMeURL = "https://www.shemaroome.com/users/mobile_no_signup"

// ShemarooMe triggers the OTP used by the shemaroome.com mobile sign-up.
type ShemarooMe struct {
	CountryCode string
}

func (ShemarooMe) Name() string { return "ShemarooMe" }

func (p ShemarooMe) Request(ctx context.Context, phoneNumber string) (*http.Request, error) {
	form := url.Values{}
	form.Set("mobile_no", p.CountryCode+phoneNumber)
	form.Set("registration_source", "organic")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, shemarooMeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	applyHeaders(req, map[string]string{
		"Accept":           "*/*",
		"Content-Type":     "application/x-www-form-urlencoded; charset=UTF-8",
		"Referer":          "https://www.shemaroome.com/users/sign_in",
		"Origin":           "https://www.shemaroome.com",
		"X-Requested-With": "XMLHttpRequest",
		"Sec-Fetch-Site":   "same-origin",
		"Priority":         "u=0",
	})
	return req, nil
}
