// Package vpic is a client for the NHTSA vPIC VIN decoding API.
package vpic

import (
	"errors"
	"fmt"
	"time"
)

// DefaultBaseURL is the public vPIC vehicles API.
const DefaultBaseURL = "https://vpic.nhtsa.dot.gov/api/vehicles"

// Response is the decodevin payload.
type Response struct {
	Count          int      `json:"Count"`
	Message        string   `json:"Message"`
	SearchCriteria string   `json:"SearchCriteria"`
	Results        []Result `json:"Results"`
}

// Result is one decoded variable. Value is nil when vPIC returns null.
type Result struct {
	Variable   string  `json:"Variable"`
	Value      *string `json:"Value"`
	ValueID    *string `json:"ValueId,omitempty"`
	VariableID int     `json:"VariableId,omitempty"`
}

// Config controls the client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// Rate is the maximum outbound requests per second; 0 disables limiting.
	Rate  float64
	Burst int
	// BreakerThreshold consecutive failures open the circuit for BreakerCooldown.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BaseURL:          DefaultBaseURL,
		Timeout:          30 * time.Second,
		UserAgent:        "vinwizard/1.0 (vin lookup)",
		Rate:             5,
		Burst:            5,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// ErrMalformed is returned when the response body is not a decodevin payload.
var ErrMalformed = errors.New("malformed decoder response")

// ErrThrottled wraps errors from waiting on the outbound rate limiter.
var ErrThrottled = errors.New("decoder request throttled")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}
