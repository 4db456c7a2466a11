package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/url-mapping/internal/ratelimit"
)

// RegisterRoutes registers the mapping endpoints. The redirect route is a
// catch-all on the first path segment, so it is registered last.
func RegisterRoutes(api huma.API, h *MappingHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "shorten",
		Method:      http.MethodPost,
		Path:        "/shorten",
		Summary:     "Shorten a URL",
		Description: "Returns the short link for a long URL, creating the mapping on first use.",
		Tags:        []string{"Mappings"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Scope: ratelimit.ScopeWrite},
		},
	}, h.Shorten)

	huma.Register(api, huma.Operation{
		OperationID: "get-mapping",
		Method:      http.MethodGet,
		Path:        "/api/mappings/{shortUrl}",
		Summary:     "Get mapping stats",
		Description: "Returns the mapping behind a short code without counting a visit.",
		Tags:        []string{"Mappings"},
	}, h.Stats)

	huma.Register(api, huma.Operation{
		OperationID: "get-mapping-qr",
		Method:      http.MethodGet,
		Path:        "/api/mappings/{shortUrl}/qr",
		Summary:     "Get QR code",
		Description: "Returns a PNG QR code encoding the short link.",
		Tags:        []string{"Mappings"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "PNG image",
				Content:     map[string]*huma.MediaType{"image/png": {}},
			},
		},
	}, h.QRCode)

	huma.Register(api, huma.Operation{
		OperationID:   "redirect",
		Method:        http.MethodGet,
		Path:          "/{shortUrl}",
		Summary:       "Follow a short link",
		Description:   "Redirects to the long URL and increments the visit count.",
		Tags:          []string{"Mappings"},
		DefaultStatus: http.StatusFound,
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Scope: ratelimit.ScopeRedirect},
		},
	}, h.Redirect)
}
