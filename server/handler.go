package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alimasry/go-badge-editor/editor"
	"github.com/alimasry/go-badge-editor/template"
)

const maxTemplateSize = 8 << 20

var tracer = otel.Tracer("github.com/alimasry/go-badge-editor/server")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type handler struct {
	session *Session
	codec   *template.Codec
	logger  *slog.Logger
}

// NewHandler creates the HTTP handler with all routes. Templates are read
// and written with codec.
func NewHandler(s *Session, codec *template.Codec, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{session: s, codec: codec, logger: logger.With("component", "http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ws", h.serveWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.logRequests)
		r.Use(traced)
		r.Get("/state", h.getState)
		r.Get("/template", h.getTemplate)
		r.Put("/template", h.putTemplate)
		r.Post("/undo", h.history(true))
		r.Post("/redo", h.history(false))
	})

	// Static editor assets, if present.
	r.Handle("/*", http.FileServer(http.Dir("static")))
	return r
}

func (h *handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", "error", err)
		return
	}
	client := newClient(h.session, conn)
	go client.WritePump()
	go client.ReadPump()
}

func (h *handler) getState(w http.ResponseWriter, r *http.Request) {
	var st editor.State
	err := h.session.Do(r.Context(), func(doc *editor.Store) error {
		st = doc.Snapshot()
		return nil
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	var t template.Template
	err := h.session.Do(r.Context(), func(doc *editor.Store) error {
		t = doc.ExportTemplate()
		return nil
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	data, err := h.codec.Encode(t)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", contentType(h.codec.Format()))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *handler) putTemplate(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxTemplateSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(data) > maxTemplateSize {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("template exceeds %d bytes", maxTemplateSize))
		return
	}
	t, err := h.codec.Decode(r.Context(), data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var st editor.State
	err = h.session.Do(r.Context(), func(doc *editor.Store) error {
		if err := doc.LoadTemplate(t); err != nil {
			return err
		}
		st = doc.Snapshot()
		return nil
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type historyResponse struct {
	Applied bool         `json:"applied"`
	State   editor.State `json:"state"`
}

func (h *handler) history(undo bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var resp historyResponse
		err := h.session.Do(r.Context(), func(doc *editor.Store) error {
			if undo {
				resp.Applied = doc.Undo()
			} else {
				resp.Applied = doc.Redo()
			}
			resp.State = doc.Snapshot()
			return nil
		})
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func traced(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			),
		)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", ww.Status()))
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}

func contentType(f template.Format) string {
	if f == template.FormatCBOR {
		return "application/cbor"
	}
	return "application/json"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
