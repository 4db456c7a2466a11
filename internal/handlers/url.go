package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/url-mapping/internal/analytics"
	"github.com/serroba/url-mapping/internal/mapping"
	"github.com/serroba/url-mapping/internal/metrics"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// MsgURLNotFound is the detail returned for unknown short codes.
const MsgURLNotFound = "Url not Found"

const qrCodeSize = 256

// MappingService is the domain surface the handlers drive.
type MappingService interface {
	Shorten(ctx context.Context, longURL, createdBy string) (*mapping.Mapping, bool, error)
	Resolve(ctx context.Context, code mapping.ShortCode) (*mapping.Mapping, error)
	Lookup(ctx context.Context, code mapping.ShortCode) (*mapping.Mapping, error)
}

// Recorder receives request outcomes for metrics.
type Recorder interface {
	Shorten(outcome string)
	Redirect(outcome string)
	PublishFailed(topic string)
}

// HandlerOption configures a MappingHandler.
type HandlerOption func(*MappingHandler)

// WithVisitReporter adds visit summaries from the analytics sink to the
// stats endpoint.
func WithVisitReporter(visits analytics.VisitReporter) HandlerOption {
	return func(h *MappingHandler) {
		h.visits = visits
	}
}

// MappingHandler serves the shorten, redirect, stats and QR endpoints.
type MappingHandler struct {
	service    MappingService
	baseURL    string
	publishers analytics.Publishers
	recorder   Recorder
	logger     *zap.Logger
	visits     analytics.VisitReporter
	now        func() time.Time
}

// NewMappingHandler creates a handler. When baseURL is empty, short links
// are built from the scheme and host of each request.
func NewMappingHandler(
	service MappingService,
	baseURL string,
	publishers analytics.Publishers,
	recorder Recorder,
	logger *zap.Logger,
	opts ...HandlerOption,
) *MappingHandler {
	h := &MappingHandler{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		publishers: publishers,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *MappingHandler) Shorten(ctx context.Context, req *ShortenRequest) (*ShortenResponse, error) {
	m, created, err := h.service.Shorten(ctx, req.Body.LongURL, req.Body.CreatedBy)
	if err != nil {
		h.recorder.Shorten(metrics.OutcomeError)

		if errors.Is(err, mapping.ErrEmptyCode) {
			return nil, huma.Error422UnprocessableEntity("url produces an empty short code")
		}

		h.logger.Error("failed to shorten url", zap.Error(err))

		return nil, huma.Error500InternalServerError("failed to shorten url")
	}

	if created {
		h.recorder.Shorten(metrics.OutcomeCreated)
		h.publishCreated(ctx, m)
	} else {
		h.recorder.Shorten(metrics.OutcomeExisting)
	}

	resp := &ShortenResponse{}
	resp.Body.ShortURL = h.shortLink(ctx, m.ShortURL)

	return resp, nil
}

// Redirect sends the client to the long URL and counts the visit. The
// long URL is used verbatim, it was never validated on the way in.
func (h *MappingHandler) Redirect(ctx context.Context, req *ShortCodeRequest) (*RedirectResponse, error) {
	m, err := h.service.Resolve(ctx, mapping.ShortCode(req.ShortURL))
	if err != nil {
		if errors.Is(err, mapping.ErrNotFound) {
			h.recorder.Redirect(metrics.OutcomeNotFound)

			return nil, huma.Error404NotFound(MsgURLNotFound)
		}

		h.logger.Error("failed to resolve short url", zap.String("code", req.ShortURL), zap.Error(err))

		return nil, huma.Error500InternalServerError("failed to resolve url")
	}

	h.recorder.Redirect(metrics.OutcomeFound)
	h.publishVisited(ctx, m)

	return &RedirectResponse{
		Status:       http.StatusFound,
		Location:     m.LongURL,
		CacheControl: "no-store",
	}, nil
}

func (h *MappingHandler) Stats(ctx context.Context, req *ShortCodeRequest) (*StatsResponse, error) {
	m, err := h.lookup(ctx, req.ShortURL)
	if err != nil {
		return nil, err
	}

	resp := &StatsResponse{}
	resp.Body.ShortURL = string(m.ShortURL)
	resp.Body.Link = h.shortLink(ctx, m.ShortURL)
	resp.Body.LongURL = m.LongURL
	resp.Body.VisitCount = m.VisitCount
	resp.Body.CreatedBy = m.CreatedBy

	if !m.CreatedAt.IsZero() {
		createdAt := m.CreatedAt
		resp.Body.CreatedAt = &createdAt
	}

	if h.visits != nil {
		h.addVisitStats(ctx, resp, req.ShortURL)
	}

	return resp, nil
}

// addVisitStats is best effort: the mapping is still served when the sink
// cannot answer.
func (h *MappingHandler) addVisitStats(ctx context.Context, resp *StatsResponse, code string) {
	stats, err := h.visits.VisitStats(ctx, code)
	if err != nil {
		h.logger.Warn("failed to read visit stats", zap.String("code", code), zap.Error(err))

		return
	}

	resp.Body.UniqueVisitors = &stats.UniqueIPs
	resp.Body.LastVisitAt = stats.LastVisitAt
}

func (h *MappingHandler) QRCode(ctx context.Context, req *ShortCodeRequest) (*QRCodeResponse, error) {
	m, err := h.lookup(ctx, req.ShortURL)
	if err != nil {
		return nil, err
	}

	png, err := qrcode.Encode(h.shortLink(ctx, m.ShortURL), qrcode.Medium, qrCodeSize)
	if err != nil {
		h.logger.Error("failed to render qr code", zap.String("code", req.ShortURL), zap.Error(err))

		return nil, huma.Error500InternalServerError("failed to render qr code")
	}

	return &QRCodeResponse{
		ContentType:  "image/png",
		CacheControl: "public, max-age=86400",
		Body:         png,
	}, nil
}

func (h *MappingHandler) lookup(ctx context.Context, code string) (*mapping.Mapping, error) {
	m, err := h.service.Lookup(ctx, mapping.ShortCode(code))
	if err != nil {
		if errors.Is(err, mapping.ErrNotFound) {
			return nil, huma.Error404NotFound(MsgURLNotFound)
		}

		h.logger.Error("failed to look up short url", zap.String("code", code), zap.Error(err))

		return nil, huma.Error500InternalServerError("failed to look up url")
	}

	return m, nil
}

func (h *MappingHandler) shortLink(ctx context.Context, code mapping.ShortCode) string {
	base := h.baseURL
	if base == "" {
		meta := RequestMetaFromContext(ctx)

		scheme := meta.Scheme
		if scheme == "" {
			scheme = "http"
		}

		host := meta.Host
		if host == "" {
			host = "localhost"
		}

		base = scheme + "://" + host
	}

	return base + "/" + string(code)
}

func (h *MappingHandler) publishCreated(ctx context.Context, m *mapping.Mapping) {
	meta := RequestMetaFromContext(ctx)
	event := &analytics.MappingCreatedEvent{
		ShortURL:  string(m.ShortURL),
		LongURL:   m.LongURL,
		CreatedBy: m.CreatedBy,
		CreatedAt: m.CreatedAt,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
	}

	if err := h.publishers.Created(ctx, event); err != nil {
		h.recorder.PublishFailed(analytics.TopicMappingCreated)
		h.logger.Error("failed to publish analytics event",
			zap.String("topic", analytics.TopicMappingCreated),
			zap.String("code", event.ShortURL),
			zap.Error(err),
		)
	}
}

func (h *MappingHandler) publishVisited(ctx context.Context, m *mapping.Mapping) {
	meta := RequestMetaFromContext(ctx)
	event := &analytics.MappingVisitedEvent{
		ShortURL:  string(m.ShortURL),
		LongURL:   m.LongURL,
		VisitedAt: h.now().UTC(),
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		Referrer:  meta.Referrer,
	}

	if err := h.publishers.Visited(ctx, event); err != nil {
		h.recorder.PublishFailed(analytics.TopicMappingVisited)
		h.logger.Error("failed to publish analytics event",
			zap.String("topic", analytics.TopicMappingVisited),
			zap.String("code", event.ShortURL),
			zap.Error(err),
		)
	}
}
