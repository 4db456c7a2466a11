package handlers

import "time"

// ShortenRequest is the request body for POST /shorten.
type ShortenRequest struct {
	Body struct {
		LongURL   string `doc:"The URL to shorten"               example:"https://example.com/very/long/path" json:"longUrl"             minLength:"1"`
		CreatedBy string `doc:"Free-text attribution, optional"  example:"alice"                              json:"createdBy,omitempty"`
	}
}

// ShortenResponse carries the absolute short link.
type ShortenResponse struct {
	Body struct {
		ShortURL string `doc:"The absolute short link" example:"http://localhost:8888/NkHF8i" json:"shortUrl"`
	}
}

// ShortCodeRequest addresses a mapping by its short code.
type ShortCodeRequest struct {
	ShortURL string `doc:"The short code" example:"NkHF8i" path:"shortUrl"`
}

// RedirectResponse is an empty-bodied redirect.
type RedirectResponse struct {
	Status       int
	Location     string `header:"Location"`
	CacheControl string `header:"Cache-Control"`
}

// StatsResponse describes a mapping without counting a visit.
type StatsResponse struct {
	Body struct {
		ShortURL   string     `doc:"The short code"              json:"shortUrl"`
		Link       string     `doc:"The absolute short link"     json:"link"`
		LongURL    string     `doc:"The original URL"            json:"longUrl"`
		VisitCount int64      `doc:"Number of redirects served"  json:"visitCount"`
		CreatedBy  string     `doc:"Attribution given at create" json:"createdBy,omitempty"`
		CreatedAt  *time.Time `doc:"Creation time, when known"   json:"createdAt,omitempty"`

		UniqueVisitors *int64     `doc:"Distinct client IPs seen by the analytics sink" json:"uniqueVisitors,omitempty"`
		LastVisitAt    *time.Time `doc:"Last visit seen by the analytics sink"          json:"lastVisitAt,omitempty"`
	}
}

// QRCodeResponse is a PNG image of the short link.
type QRCodeResponse struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}
