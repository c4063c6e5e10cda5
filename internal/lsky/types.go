package lsky

import "encoding/json"

// AuthConfig holds the connection settings for a Lsky Pro server. The
// client mutates Token as a side effect of successful authentication;
// callers persist it so later sessions skip the sign-in request.
// ServerURL must not carry a trailing slash (enforced at config load).
type AuthConfig struct {
	ServerURL  string
	Email      string
	Password   string
	Token      string
	StrategyID int
}

// envelope is the JSON wrapper every Lsky endpoint returns. A response
// that parses but lacks this shape is a protocol failure, distinct from
// a transport failure.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type tokenData struct {
	Token string `json:"token"`
}

// Links holds the public URLs of a stored image.
type Links struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Image is one stored image on the remote service. Key is the stable
// deletion handle; Links.URL is the comparison handle matched against
// note content during reconciliation.
type Image struct {
	Key        string  `json:"key"`
	Name       string  `json:"name"`
	OriginName string  `json:"origin_name,omitempty"`
	Pathname   string  `json:"pathname,omitempty"`
	Size       float64 `json:"size,omitempty"`
	Links      Links   `json:"links"`
}

type imagePage struct {
	CurrentPage int     `json:"current_page"`
	LastPage    int     `json:"last_page"`
	Data        []Image `json:"data"`
}

type uploadData struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Links Links  `json:"links"`
}
