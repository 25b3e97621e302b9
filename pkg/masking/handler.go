package masking

import (
	"context"
	"log/slog"
)

// Handler wraps an slog.Handler, masking every string-valued attribute
// before it reaches the inner handler. Installed once at cmd/execution-core
// startup as the outermost layer around the sink (stdout, a file, an OTel
// exporter), so masking is a boundary concern rather than something every
// call site has to remember.
type Handler struct {
	inner   slog.Handler
	service *Service
}

// NewHandler wraps inner with masking driven by service.
func NewHandler(inner slog.Handler, service *Service) *Handler {
	return &Handler{inner: inner, service: service}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	masked := slog.NewRecord(rec.Time, rec.Level, h.service.Mask(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(h.maskAttr(a))
		return true
	})
	return h.inner.Handle(ctx, masked)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.maskAttr(a)
	}
	return &Handler{inner: h.inner.WithAttrs(masked), service: h.service}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), service: h.service}
}

func (h *Handler) maskAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, h.service.Mask(a.Value.String()))
	}
	return a
}
