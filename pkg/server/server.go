package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/adfharrison1/go-docload/pkg/api"
	"github.com/adfharrison1/go-docload/pkg/loader"
	"github.com/adfharrison1/go-docload/pkg/storage"
)

// Server holds references to the storage engine, loader and router.
type Server struct {
	router *mux.Router
	engine *storage.Engine
	loader *loader.DocumentLoader
}

// NewServer creates a new instance of Server around the given engine.
func NewServer(engine *storage.Engine, loaderOptions ...loader.Option) *Server {
	s := &Server{
		router: mux.NewRouter(),
		engine: engine,
		loader: loader.New(engine, loaderOptions...),
	}

	handler := api.NewHandler(s.loader, s.engine)
	handler.RegisterRoutes(s.router)

	// Use the logging middleware for all routes
	s.router.Use(requestLoggerMiddleware)

	// Customize NotFoundHandler to log 404s
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("WARN: No route found for %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	})

	return s
}

// requestLoggerMiddleware logs the method, URL path, and duration for each request.
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		elapsed := time.Since(start)
		log.Printf("INFO: Request %s %s took %s", r.Method, r.URL.Path, elapsed)
	})
}

// InitDB loads a snapshot from file, if one exists.
func (s *Server) InitDB(filename string) {
	if err := s.engine.LoadFromFile(filename); err != nil {
		log.Printf("ERROR: Could not load snapshot from file %s: %v", filename, err)
	} else {
		log.Printf("INFO: Loaded snapshot from file %s successfully", filename)
	}
}

// SaveDB saves the current engine state to file.
func (s *Server) SaveDB(filename string) {
	if err := s.engine.SaveToFile(filename); err != nil {
		log.Printf("ERROR: Could not save snapshot to file %s: %v", filename, err)
	} else {
		log.Printf("INFO: Saved snapshot to file %s successfully", filename)
	}
}

// Router exposes the internal mux.Router.
func (s *Server) Router() http.Handler {
	return s.router
}

// Loader exposes the server's document loader.
func (s *Server) Loader() *loader.DocumentLoader {
	return s.loader
}
