package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/merfish-atlas/viewer/internal/cache"
	"github.com/merfish-atlas/viewer/internal/config"
	"github.com/merfish-atlas/viewer/internal/dataset"
	"github.com/merfish-atlas/viewer/internal/layer"
	"github.com/merfish-atlas/viewer/internal/view"
)

// Server holds the dataset catalog, caches and the active view
// session shared by all handlers.
type Server struct {
	cfg     *config.Config
	catalog *dataset.Catalog
	caches  *cache.Manager

	sessMu  sync.Mutex
	session *view.Session
	variant string
}

// NewServer creates a server and opens a view session on the default
// variant.
func NewServer(cfg *config.Config, catalog *dataset.Catalog, caches *cache.Manager) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		catalog: catalog,
		caches:  caches,
	}
	sess, err := s.openSession(catalog.Default())
	if err != nil {
		return nil, err
	}
	s.session = sess
	s.variant = catalog.Default()
	return s, nil
}

func (s *Server) openSession(variant string) (*view.Session, error) {
	clusters, err := s.catalog.Clusters(variant)
	if err != nil {
		return nil, err
	}
	pal, err := s.catalog.Palette(variant)
	if err != nil {
		return nil, err
	}
	return view.NewSession(view.SessionConfig{
		Source:           s.catalog.Source(variant),
		Clusters:         clusters,
		Palette:          pal,
		Width:            s.cfg.View.Width,
		Height:           s.cfg.View.Height,
		ChunkSize:        s.cfg.View.ChunkSize,
		MaxPointsPerCell: s.cfg.View.MaxPointsPerCell,
		PointSize:        s.cfg.View.PointSize,
		LayerCapacity:    s.cfg.Cache.LayerCapacity,
	})
}

// Close releases the view session.
func (s *Server) Close() {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	if s.session != nil {
		s.session.Close()
	}
}

// variantFromRequest resolves the ?data= query parameter against the
// catalog, defaulting when absent.
func (s *Server) variantFromRequest(r *http.Request) (string, error) {
	variant := r.URL.Query().Get("data")
	if variant == "" {
		return s.catalog.Default(), nil
	}
	if !s.catalog.Valid(variant) {
		return "", fmt.Errorf("unknown dataset variant: %s", variant)
	}
	return variant, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.sessMu.Lock()
	variant := s.variant
	s.sessMu.Unlock()

	stats := s.caches.Stats()
	stats["variant"] = variant
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleVariants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"variants": s.catalog.Variants(),
		"default":  s.catalog.Default(),
	})
}

// servePayload writes a dataset payload with the right content
// headers. Compressed payloads are raw gzip bodies served verbatim;
// the explicit Content-Encoding keeps the compression middleware from
// double-encoding them.
func servePayload(w http.ResponseWriter, data []byte, compressed bool) {
	w.Header().Set("Content-Type", "application/json")
	if compressed {
		w.Header().Set("Content-Encoding", "gzip")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("Failed to write payload: %v", err)
	}
}

func (s *Server) serveContours(w http.ResponseWriter, r *http.Request, kind layer.Kind) {
	variant, err := s.variantFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	z, err := strconv.Atoi(chi.URLParam(r, "zstack"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid zstack")
		return
	}

	plain := r.URL.Query().Get("plain") == "1"
	key := cache.PayloadKey(variant, kind.String(), z, plain)
	if data, ok := s.caches.GetPayload(key); ok {
		servePayload(w, data, !plain)
		return
	}

	data, err := s.catalog.Source(variant).Contours(r.Context(), kind, z, !plain)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no %s data for z-stack %d", kind, z))
			return
		}
		log.Printf("Failed to read %s z=%d for %s: %v", kind, z, variant, err)
		writeError(w, http.StatusInternalServerError, "failed to read dataset")
		return
	}

	if err := s.caches.SetPayload(key, data); err != nil {
		log.Printf("Failed to cache payload %s: %v", key, err)
	}
	servePayload(w, data, !plain)
}

func (s *Server) handleContours(w http.ResponseWriter, r *http.Request) {
	s.serveContours(w, r, layer.KindBoundary)
}

func (s *Server) handleNuclei(w http.ResponseWriter, r *http.Request) {
	s.serveContours(w, r, layer.KindNuclei)
}

func (s *Server) handleGeneList(w http.ResponseWriter, r *http.Request) {
	variant, err := s.variantFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	genes, err := s.catalog.Genes(variant)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, []string{})
			return
		}
		log.Printf("Failed to list genes for %s: %v", variant, err)
		writeError(w, http.StatusInternalServerError, "failed to list genes")
		return
	}
	if genes == nil {
		genes = []string{}
	}
	writeJSON(w, http.StatusOK, genes)
}

func (s *Server) handleGene(w http.ResponseWriter, r *http.Request) {
	variant, err := s.variantFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	gene := chi.URLParam(r, "gene")
	plain := r.URL.Query().Get("plain") == "1"
	key := cache.GeneKey(variant, gene, plain)
	if data, ok := s.caches.GetPayload(key); ok {
		servePayload(w, data, !plain)
		return
	}

	data, err := s.catalog.Source(variant).GenePoints(r.Context(), gene, !plain)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no data for gene %s", gene))
			return
		}
		log.Printf("Failed to read gene %s for %s: %v", gene, variant, err)
		writeError(w, http.StatusInternalServerError, "failed to read dataset")
		return
	}

	if err := s.caches.SetPayload(key, data); err != nil {
		log.Printf("Failed to cache payload %s: %v", key, err)
	}
	servePayload(w, data, !plain)
}

// serveMetaFile serves a small per-variant JSON file through the
// metadata cache. Missing files degrade to an empty object.
func (s *Server) serveMetaFile(w http.ResponseWriter, name, path string) {
	key := "meta:" + path
	if data, ok := s.caches.GetMeta(key); ok {
		servePayload(w, data, false)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			servePayload(w, []byte("{}"), false)
			return
		}
		log.Printf("Failed to read %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, "failed to read "+name)
		return
	}

	s.caches.SetMeta(key, data)
	servePayload(w, data, false)
}

func (s *Server) handlePalette(w http.ResponseWriter, r *http.Request) {
	variant, err := s.variantFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.serveMetaFile(w, "palette", s.catalog.PalettePath(variant))
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	variant, err := s.variantFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.serveMetaFile(w, "clusters", s.catalog.ClustersPath(variant))
}
