package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// GenericResponse is the envelope every collaborator service wraps its
// payloads in: {"success": bool, "message": string, "data": ...}.
type GenericResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// CollaboratorError is a non-2xx or success=false reply from a collaborator,
// carrying the message the collaborator reported.
type CollaboratorError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *CollaboratorError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s service returned status %d", e.Service, e.StatusCode)
}

const customerIDHeader = "X-Customer-Id"

// serviceClient holds the pieces shared by all collaborator clients: a base
// URL and an injected *http.Client whose Timeout bounds every call.
type serviceClient struct {
	name    string
	baseURL string
	http    *http.Client
}

func newServiceClient(name, baseURL string, timeout time.Duration) serviceClient {
	return serviceClient{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// do issues one request against the collaborator and decodes the envelope.
// The acting customer travels as the X-Customer-Id header, never in the body,
// so a caller cannot spoof another customer past the authenticated session.
func (c *serviceClient) do(ctx context.Context, method, path string, customerID int64, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", c.name, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(customerIDHeader, strconv.FormatInt(customerID, 10))
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s call failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	var envelope GenericResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		if resp.StatusCode >= 400 {
			return &CollaboratorError{Service: c.name, StatusCode: resp.StatusCode}
		}
		return fmt.Errorf("failed to decode %s response: %w", c.name, err)
	}

	if resp.StatusCode >= 400 || !envelope.Success {
		return &CollaboratorError{
			Service:    c.name,
			StatusCode: resp.StatusCode,
			Message:    envelope.Message,
		}
	}

	if out != nil {
		if envelope.Data == nil {
			return fmt.Errorf("%s response missing data field", c.name)
		}
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode %s response data: %w", c.name, err)
		}
	}

	return nil
}
