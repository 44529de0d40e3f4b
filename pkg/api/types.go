package api

import (
	"io"
	"time"

	"github.com/ssargent/bubo/pkg/attrs"
	"github.com/ssargent/bubo/pkg/store"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// AttrsRequest carries an attribute set in a request body
type AttrsRequest struct {
	Attrs      []attrs.Attr `json:"attrs"`
	WantString bool         `json:"want_string,omitempty"`
}

// AddResponse is returned by POST /attrs
type AddResponse struct {
	Existed    bool   `json:"existed"`
	AttrString string `json:"attr_string,omitempty"`
}

// ContainsResponse is returned by POST /attrs/contains
type ContainsResponse struct {
	Contains bool `json:"contains"`
}

// RemoveResponse is returned by DELETE /attrs
type RemoveResponse struct {
	Removed bool `json:"removed"`
}

// ListResponse is returned by GET /attrs
type ListResponse struct {
	Count int            `json:"count"`
	Sets  [][]attrs.Attr `json:"sets"`
}

// HashResponse is returned by GET /hash
type HashResponse struct {
	Hash uint32 `json:"hash"`
	Hex  string `json:"hex"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port          int
	Bind          string
	APIKey        string        // required in X-API-Key when set
	StatsInterval time.Duration // how often store gauges are refreshed (default 30s)
}

// IAttrStore defines the attribute store operations the API serves
type IAttrStore interface {
	Add(set []attrs.Attr, wantString bool) (bool, string, error)
	Contains(set []attrs.Attr) (bool, error)
	Remove(set []attrs.Attr) (bool, error)
	List(limit int) ([][]attrs.Attr, error)
	Export(w io.Writer) (int, error)
	Stats() (*store.StoreStats, error)
}
