package hubspot

import (
	"errors"
	"fmt"
	"net/http"
)

// Paging carries the cursor for the next page, if any.
type Paging struct {
	Next *struct {
		After string `json:"after"`
	} `json:"next,omitempty"`
}

// NextAfter returns the next-page cursor or "" on the last page.
func (p *Paging) NextAfter() string {
	if p == nil || p.Next == nil {
		return ""
	}
	return p.Next.After
}

// Property is a field definition from the properties endpoint.
type Property struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Type      string `json:"type"`
	FieldType string `json:"fieldType"`
	Archived  bool   `json:"archived"`
}

// PropertiesResponse is one page of property definitions.
type PropertiesResponse struct {
	Results []Property `json:"results"`
	Paging  *Paging    `json:"paging,omitempty"`
}

// Filter is a single search predicate.
type Filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value,omitempty"`
}

// FilterGroup ANDs its filters; groups are ORed.
type FilterGroup struct {
	Filters []Filter `json:"filters"`
}

// Sort orders search results.
type Sort struct {
	PropertyName string `json:"propertyName"`
	Direction    string `json:"direction"`
}

// SearchRequest is the body of the object search endpoint.
type SearchRequest struct {
	FilterGroups []FilterGroup `json:"filterGroups,omitempty"`
	Sorts        []Sort        `json:"sorts,omitempty"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit"`
	After        string        `json:"after,omitempty"`
}

// Object is one CRM object with the requested properties.
type Object struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
	Archived   bool           `json:"archived"`
}

// ObjectsResponse is one page of objects from the list or search endpoints.
type ObjectsResponse struct {
	Total   int      `json:"total,omitempty"`
	Results []Object `json:"results"`
	Paging  *Paging  `json:"paging,omitempty"`
}

var (
	ErrUnauthorized = errors.New("crm api: unauthorized")
	ErrRateLimited  = errors.New("crm api: rate limited")
)

// APIError is a non-2xx response from the CRM.
type APIError struct {
	StatusCode int
	Category   string `json:"category"`
	Message    string `json:"message"`
	Body       string `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("crm api: status %d (%s): %s", e.StatusCode, e.Category, e.Message)
	}
	return fmt.Sprintf("crm api: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// Retryable reports whether the call may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
