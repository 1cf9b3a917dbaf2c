package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/merfish-atlas/viewer/internal/store"
	"github.com/merfish-atlas/viewer/internal/view"
	"github.com/merfish-atlas/viewer/internal/visibility"
)

func (s *Server) currentSession() *view.Session {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	return s.session
}

type zstackRequest struct {
	ZStack int `json:"zstack"`
}

func (s *Server) handleViewZStack(w http.ResponseWriter, r *http.Request) {
	var req zstackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ZStack < 0 {
		writeError(w, http.StatusBadRequest, "zstack must be non-negative")
		return
	}
	s.currentSession().SetZStack(req.ZStack)
	writeJSON(w, http.StatusOK, map[string]interface{}{"zstack": req.ZStack})
}

// settingsRequest uses pointer fields so clients can update a subset
// without resetting the rest.
type settingsRequest struct {
	ShowBoundaries  *bool    `json:"showBoundaries"`
	ShowNuclei      *bool    `json:"showNuclei"`
	BoundaryOpacity *float64 `json:"boundaryOpacity"`
	NucleiOpacity   *float64 `json:"nucleiOpacity"`
	InnerColoring   *bool    `json:"innerColoring"`
	InnerOpacity    *float64 `json:"innerOpacity"`
	FlipX           *bool    `json:"flipX"`
	FlipY           *bool    `json:"flipY"`
	SwapXY          *bool    `json:"swapXY"`
}

func (s *Server) handleViewSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess := s.currentSession()
	flags := map[store.Key]*bool{
		store.KeyShowBoundaries: req.ShowBoundaries,
		store.KeyShowNuclei:     req.ShowNuclei,
		store.KeyInnerColoring:  req.InnerColoring,
		store.KeyFlipX:          req.FlipX,
		store.KeyFlipY:          req.FlipY,
		store.KeySwapXY:         req.SwapXY,
	}
	for key, v := range flags {
		if v != nil {
			sess.SetFlag(key, *v)
		}
	}
	opacities := map[store.Key]*float64{
		store.KeyBoundaryOpacity: req.BoundaryOpacity,
		store.KeyNucleiOpacity:   req.NucleiOpacity,
		store.KeyInnerOpacity:    req.InnerOpacity,
	}
	for key, v := range opacities {
		if v != nil {
			sess.SetOpacity(key, *v)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type geneStyleRequest struct {
	Color string  `json:"color"`
	Scale float32 `json:"scale"`
}

type genesRequest struct {
	Genes      []string                    `json:"genes"`
	Visibility map[string]bool             `json:"visibility"`
	Styles     map[string]geneStyleRequest `json:"styles"`
}

func (s *Server) handleViewGenes(w http.ResponseWriter, r *http.Request) {
	var req genesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess := s.currentSession()
	for gene, gs := range req.Styles {
		sess.SetGeneStyle(gene, visibility.GeneStyle{Color: gs.Color, Scale: gs.Scale})
	}
	if req.Visibility != nil {
		sess.SetGeneVisibility(req.Visibility)
	}
	if req.Genes != nil {
		sess.SelectGenes(req.Genes)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"genes": req.Genes})
}

type cameraRequest struct {
	Pan *struct {
		DX float64 `json:"dx"`
		DY float64 `json:"dy"`
	} `json:"pan"`
	Zoom *struct {
		Factor float64 `json:"factor"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
	} `json:"zoom"`
	Fit bool `json:"fit"`
}

func (s *Server) handleViewCamera(w http.ResponseWriter, r *http.Request) {
	var req cameraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess := s.currentSession()
	switch {
	case req.Pan != nil:
		sess.Pan(req.Pan.DX, req.Pan.DY)
	case req.Zoom != nil:
		if req.Zoom.Factor <= 0 {
			writeError(w, http.StatusBadRequest, "zoom factor must be positive")
			return
		}
		sess.ZoomAt(req.Zoom.Factor, req.Zoom.X, req.Zoom.Y)
	case req.Fit:
		sess.Fit()
	default:
		writeError(w, http.StatusBadRequest, "expected pan, zoom or fit")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type variantRequest struct {
	Variant string `json:"variant"`
}

func (s *Server) handleViewVariant(w http.ResponseWriter, r *http.Request) {
	var req variantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.catalog.Valid(req.Variant) {
		writeError(w, http.StatusBadRequest, "unknown dataset variant: "+req.Variant)
		return
	}

	clusters, err := s.catalog.Clusters(req.Variant)
	if err != nil {
		log.Printf("Failed to load clusters for %s: %v", req.Variant, err)
		writeError(w, http.StatusInternalServerError, "failed to load variant")
		return
	}
	pal, err := s.catalog.Palette(req.Variant)
	if err != nil {
		log.Printf("Failed to load palette for %s: %v", req.Variant, err)
		writeError(w, http.StatusInternalServerError, "failed to load variant")
		return
	}

	s.sessMu.Lock()
	s.session.SetVariant(req.Variant, s.catalog.Source(req.Variant), clusters, pal)
	s.variant = req.Variant
	s.sessMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"variant": req.Variant})
}

func (s *Server) handleViewRender(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession()
	data, err := sess.Render()
	if err != nil {
		log.Printf("Failed to render viewport: %v", err)
		data, err = sess.EmptyViewport()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to render viewport")
			return
		}
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("Failed to write viewport: %v", err)
	}
}

func (s *Server) handleViewPick(w http.ResponseWriter, r *http.Request) {
	x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
	y, errY := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
	if errX != nil || errY != nil {
		writeError(w, http.StatusBadRequest, "x and y query parameters required")
		return
	}

	res := s.currentSession().Pick(x, y)
	if res == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"hit": false})
		return
	}
	if res.Gene != "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"hit":  true,
			"gene": res.Gene,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hit":     true,
		"cellId":  res.CellID,
		"cluster": res.Cluster,
	})
}
