// Package demoserver serves a tiny site with one well-behaved and one
// vulnerable page, used as a scan target.
package demoserver

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
)

// DemoServer is a simple HTTP server for demonstrating scan results.
type DemoServer struct {
	cfg   Config
	pages map[string]Page
}

// NewDemoServer creates a new demo server instance.
func NewDemoServer(cfg Config) *DemoServer {
	pageMap := make(map[string]Page)
	for _, p := range GetAllPages() {
		pageMap[p.Path] = p
	}
	return &DemoServer{cfg: cfg, pages: pageMap}
}

// Handler returns the demo site's routes.
func (s *DemoServer) Handler() http.Handler {
	mux := http.NewServeMux()
	for path := range s.pages {
		mux.HandleFunc(path, s.pageHandler(path))
	}
	mux.HandleFunc("/demo/pages", s.listPagesHandler)
	mux.HandleFunc("/static/", s.staticHandler)
	return mux
}

// Start starts the demo server.
func (s *DemoServer) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	fmt.Printf("Demo server starting on http://localhost%s\n", addr)
	for path := range s.pages {
		fmt.Printf("  http://localhost%s%s\n", addr, path)
	}
	return http.ListenAndServe(addr, s.Handler())
}

// pageHandler returns a handler for a specific page path.
func (s *DemoServer) pageHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, ok := s.pages[path]
		if !ok {
			http.NotFound(w, r)
			return
		}

		for k, v := range page.Headers {
			w.Header().Set(k, v)
		}
		for _, c := range page.Cookies {
			http.SetCookie(w, toCookie(c))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		if page.SQLErrors && strings.Contains(r.URL.Query().Get("id"), "'") {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("You have an error in your SQL syntax; check the manual that corresponds to your MySQL server version"))
			return
		}

		echo := ""
		if q := r.URL.Query().Get("q"); q != "" {
			if page.EscapeQuery {
				q = html.EscapeString(q)
			}
			echo = "<p>Results for " + q + "</p>"
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(strings.Replace(page.HTML, "{{QUERY}}", echo, 1)))
	}
}

func toCookie(c CookieDef) *http.Cookie {
	cookie := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		HttpOnly: c.HttpOnly,
		Secure:   c.Secure,
	}
	switch c.SameSite {
	case "Strict":
		cookie.SameSite = http.SameSiteStrictMode
	case "Lax":
		cookie.SameSite = http.SameSiteLaxMode
	case "None":
		cookie.SameSite = http.SameSiteNoneMode
	}
	return cookie
}

// staticHandler serves placeholder static files.
func (s *DemoServer) staticHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write([]byte("demo static file: " + r.URL.Path))
}

// PageInfo describes a page for the listing endpoint.
type PageInfo struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

func (s *DemoServer) listPagesHandler(w http.ResponseWriter, r *http.Request) {
	pages := make([]PageInfo, 0, len(s.pages))
	for _, p := range GetAllPages() {
		pages = append(pages, PageInfo{Path: p.Path, Description: p.Description})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(pages)
}
