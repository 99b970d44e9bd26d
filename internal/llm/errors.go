package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sashabaranov/go-openai"
)

// Classification buckets a request failure for the retry policy.
type Classification string

const (
	// ClassValidation marks a malformed request (HTTP 422 equivalent).
	// Never retried; surfaced verbatim with any server-supplied detail.
	ClassValidation Classification = "validation"

	// ClassServer marks a 5xx-equivalent provider failure. Retried.
	ClassServer Classification = "server"

	// ClassNetwork marks a request where no response was received. Retried.
	ClassNetwork Classification = "network"

	// ClassMalformed marks a received response missing the expected
	// content field after repair attempts. Not retried.
	ClassMalformed Classification = "malformed-response"
)

// RequestError is a classified provider failure.
type RequestError struct {
	Class  Classification
	Status int
	Detail string
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Class, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s error: %s", e.Class, e.Detail)
}

func (e *RequestError) Unwrap() error { return e.Err }

// classifyStatus maps an HTTP status code onto the failure taxonomy.
func classifyStatus(status int) Classification {
	switch {
	case status >= 500:
		return ClassServer
	case status == 429:
		// Rate limiting behaves like transient server pressure.
		return ClassServer
	case status >= 400:
		return ClassValidation
	}
	return ClassServer
}

// Classify derives the failure classification for any provider error.
func Classify(err error) Classification {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Class
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var oaiReqErr *openai.RequestError
	if errors.As(err, &oaiReqErr) {
		if oaiReqErr.HTTPStatusCode > 0 {
			return classifyStatus(oaiReqErr.HTTPStatusCode)
		}
		return ClassNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassNetwork
	}
	return ClassNetwork
}

// retryable reports whether the classification permits another attempt.
func retryable(class Classification) bool {
	return class == ClassServer || class == ClassNetwork
}

// UserMessage maps a classified failure to the short description shown in
// the conversation. Full detail stays in the logs.
func UserMessage(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Class {
		case ClassValidation:
			if reqErr.Detail != "" {
				return "Invalid request: " + reqErr.Detail
			}
			return "Invalid request."
		case ClassServer:
			if reqErr.Detail != "" {
				return "The assistant service reported an error: " + reqErr.Detail
			}
			return "The assistant service reported an error."
		case ClassNetwork:
			return "No response from the assistant service."
		case ClassMalformed:
			return "The assistant returned an unreadable response."
		}
	}
	switch Classify(err) {
	case ClassNetwork:
		return "No response from the assistant service."
	case ClassValidation:
		return "Invalid request."
	default:
		return "The assistant service reported an error."
	}
}
