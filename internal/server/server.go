// Package server handles the HTTP API for the pokedex document store.
package server

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ASHISH26940/pokedex/internal/logging"
	"github.com/ASHISH26940/pokedex/internal/store"
)

// Repository is the interface our server needs to interact with the storage layer.
// By depending on an interface, we can easily swap the store in our tests.
type Repository interface {
	ListRegions() []string
	GetRegion(id string) (store.Region, error)
	CreateRegion(id string) (store.Region, error)
	RenameRegion(oldID, newID string) (store.Rename, error)
	DeleteRegion(id string) (store.Region, error)

	ListPokemon(regionID string, f store.Filter) ([]store.Pokemon, error)
	GetPokemon(regionID, id string) (store.Pokemon, error)
	CreatePokemon(regionID string, batch []store.NewPokemon) ([]store.Pokemon, error)
	UpdatePokemon(regionID, id string, patch store.PokemonPatch) (store.Pokemon, error)
	DeletePokemon(regionID, id string) (store.Pokemon, error)
}

// Options configures a Server.
type Options struct {
	APIPrefix   string // e.g. "/api"; "" mounts the routes at the root
	CORSOrigins []string
	Logger      *zap.Logger
}

// Server is the HTTP server for the pokedex.
type Server struct {
	repo    Repository
	logger  *zap.Logger
	prefix  string
	router  *http.ServeMux
	handler http.Handler
}

// New creates a new Server instance.
func New(repo Repository, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Server{
		repo:   repo,
		logger: logger,
		prefix: strings.TrimRight(opts.APIPrefix, "/"),
		router: http.NewServeMux(),
	}
	s.registerRoutes()

	// Middlewares (outermost -> innermost)
	var h http.Handler = s.router
	h = withCORS(opts.CORSOrigins)(h)
	h = withRecover(logger)(h)
	h = withLogging(logger)(h)
	h = withRequestID(h)
	s.handler = h
	return s
}

// ServeHTTP makes our Server a standard http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handle(method, path string, h http.HandlerFunc) {
	s.router.HandleFunc(method+" "+s.prefix+path, h)
}

// registerRoutes sets up the HTTP routing for the server.
func (s *Server) registerRoutes() {
	s.router.HandleFunc("GET /{$}", s.handleRoot)
	s.router.HandleFunc("GET /healthz", s.handleHealth)

	s.handle(http.MethodGet, "/regions", s.handleListRegions)
	s.handle(http.MethodPost, "/regions", s.handleCreateRegion)
	s.handle(http.MethodGet, "/regions/{id}", s.handleGetRegion)
	s.handle(http.MethodPut, "/regions/{id}", s.handleRenameRegion)
	s.handle(http.MethodDelete, "/regions/{id}", s.handleDeleteRegion)

	s.handle(http.MethodGet, "/regions/{region}/pokemons", s.handleListPokemon)
	s.handle(http.MethodPost, "/regions/{region}/pokemons", s.handleCreatePokemon)
	s.handle(http.MethodGet, "/regions/{region}/pokemons/{id}", s.handleGetPokemon)
	s.handle(http.MethodPut, "/regions/{region}/pokemons/{id}", s.handleUpdatePokemon)
	s.handle(http.MethodDelete, "/regions/{region}/pokemons/{id}", s.handleDeletePokemon)

	s.router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "route not found")
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"message": "Welcome to the Pokédex API",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// --- Regions ---

type regionView struct {
	Region   string          `json:"region"`
	Pokemons []store.Pokemon `json:"pokemons"`
}

type createdRegionView struct {
	ID       string          `json:"id"`
	Pokemons []store.Pokemon `json:"pokemons"`
}

func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.repo.ListRegions())
}

func (s *Server) handleGetRegion(w http.ResponseWriter, r *http.Request) {
	region, err := s.repo.GetRegion(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, regionView{Region: region.ID, Pokemons: region.Pokemons})
}

func (s *Server) handleCreateRegion(w http.ResponseWriter, r *http.Request) {
	id, err := regionField(w, r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	region, err := s.repo.CreateRegion(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdRegionView{ID: region.ID, Pokemons: region.Pokemons})
}

func (s *Server) handleRenameRegion(w http.ResponseWriter, r *http.Request) {
	oldID := r.PathValue("id")
	// An unknown region is reported before the body is looked at.
	if _, err := s.repo.GetRegion(oldID); err != nil {
		s.writeError(w, r, err)
		return
	}
	newID, err := regionField(w, r, "newId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.repo.RenameRegion(oldID, newID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "region updated", OldID: res.OldID, NewID: res.NewID})
}

func (s *Server) handleDeleteRegion(w http.ResponseWriter, r *http.Request) {
	region, err := s.repo.DeleteRegion(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{
		Message: "region deleted",
		Deleted: regionView{Region: region.ID, Pokemons: region.Pokemons},
	})
}

// --- Pokemon ---

func (s *Server) handleListPokemon(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.repo.ListPokemon(r.PathValue("region"), store.Filter{
		Name: q.Get("name"),
		Type: q.Get("type"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetPokemon(w http.ResponseWriter, r *http.Request) {
	p, err := s.repo.GetPokemon(r.PathValue("region"), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreatePokemon(w http.ResponseWriter, r *http.Request) {
	regionID := r.PathValue("region")
	if _, err := s.repo.GetRegion(regionID); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, batch, err := decodeCreate(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.repo.CreatePokemon(regionID, batch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !req.Batch && len(created) == 1 {
		writeJSON(w, http.StatusCreated, created[0])
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdatePokemon(w http.ResponseWriter, r *http.Request) {
	patch, err := decodePatch(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.repo.UpdatePokemon(r.PathValue("region"), r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePokemon(w http.ResponseWriter, r *http.Request) {
	p, err := s.repo.DeletePokemon(r.PathValue("region"), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "pokemon deleted", Deleted: p})
}
