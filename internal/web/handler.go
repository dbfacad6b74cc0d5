package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"statharvest/internal/components/assert"
	"statharvest/internal/components/telemetry"
	"statharvest/internal/docstore"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	gomponents "maragu.dev/gomponents"
)

const (
	report_web_list = "web.list"
	report_web_get  = "web.get"
)

const listLimit = 50

// Documents is the part of the document store the pages read from.
type Documents interface {
	List(ctx context.Context, collection string, limit int) ([]docstore.Document, error)
	Get(ctx context.Context, id string) (docstore.Document, error)
}

type Handler struct {
	docs Documents
	tel  telemetry.API
}

func NewHandler(docs Documents, tel telemetry.API) *Handler {
	assert.NotNil(docs)
	assert.NotNil(tel)
	return &Handler{
		docs: docs,
		tel:  telemetry.NewScopedAPI("web", tel),
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/", h.Home)
	r.Get("/about", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/about/", http.StatusMovedPermanently)
	})
	r.Get("/about/", h.About)
	r.Get("/documents/{id}", h.Document)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		renderHTML(w, http.StatusNotFound, notFoundPage(r.URL.Path))
	})
	return r
}

func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	collection := r.URL.Query().Get("collection")
	docs, err := h.docs.List(r.Context(), collection, listLimit)
	if err != nil {
		h.tel.ReportBroken(report_web_list, err)
		renderHTML(w, http.StatusInternalServerError, errorPage(err))
		return
	}

	rows := make([]documentRow, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, documentRow{
			ID:         doc.ID,
			URL:        "/documents/" + doc.ID,
			Title:      documentTitle(doc),
			Collection: doc.Collection,
			Created:    doc.CreatedAt,
		})
	}
	renderHTML(w, http.StatusOK, homePage(collection, rows))
}

func (h *Handler) About(w http.ResponseWriter, r *http.Request) {
	renderHTML(w, http.StatusOK, aboutPage())
}

// Document serves the stored body of a single document as is.
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.docs.Get(r.Context(), id)
	if errors.Is(err, docstore.ErrNotFound) {
		renderHTML(w, http.StatusNotFound, notFoundPage(r.URL.Path))
		return
	}
	if err != nil {
		h.tel.ReportBroken(report_web_get, err, id)
		renderHTML(w, http.StatusInternalServerError, errorPage(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Body)
}

// documentTitle uses a top level "title" or "group" field when the document
// has one.
func documentTitle(doc docstore.Document) string {
	var fields struct {
		Title string `json:"title"`
		Group string `json:"group"`
	}
	if json.Unmarshal(doc.Body, &fields) == nil {
		if fields.Title != "" {
			return fields.Title
		}
		if fields.Group != "" {
			return fields.Group
		}
	}
	return doc.ID
}

func renderHTML(w http.ResponseWriter, status int, node gomponents.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = node.Render(w)
}
