package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/janelia-flyem/bioview/bv"
	"github.com/janelia-flyem/bioview/cache"
	"github.com/janelia-flyem/bioview/dataset"
	"github.com/janelia-flyem/bioview/loader"
	"github.com/janelia-flyem/bioview/reader"
	"github.com/rs/cors"
	"github.com/zenazn/goji/web"
	"github.com/zenazn/goji/web/middleware"
)

// WebAPIPath is the path prefix of all HTTP API calls.
const WebAPIPath = "/api/"

func (s *Service) initRoutes(corsDomains []string) {
	origins := corsDomains
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux := web.New()
	mux.Use(middleware.Recoverer)
	mux.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "HEAD"},
		ExposedHeaders: []string{"X-Pixel-Type", "X-Tile-Min", "X-Tile-Size", "X-Tile-Valid"},
	}).Handler)

	mux.Get(WebAPIPath+"about", s.aboutHandler)
	mux.Get(WebAPIPath+"dataset", s.datasetHandler)
	mux.Get(WebAPIPath+"setup/:setup", s.setupHandler)
	mux.Get(WebAPIPath+"tile/:setup/:t/:level/:coord", s.tileHandler)
	mux.Get(WebAPIPath+"cache", s.cacheHandler)
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, fmt.Sprintf("no bioview API call for %q", r.URL.Path), http.StatusNotFound)
	})
	s.mux = mux
}

// BadRequest writes a 400 status and logs the error message.
func BadRequest(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	bv.Errorf("ERROR: %s (%s).\n", message, r.URL)
	http.Error(w, message, http.StatusBadRequest)
}

func writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	m, err := json.Marshal(v)
	if err != nil {
		BadRequest(w, r, "could not encode response: %v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(m)
}

func (s *Service) aboutHandler(w http.ResponseWriter, r *http.Request) {
	var formats []string
	for _, f := range reader.Formats() {
		formats = append(formats, f.String())
	}
	writeJSON(w, r, struct {
		Version string
		Formats []string
		Summary string
	}{Version, formats, s.seq.Summary()})
}

func (s *Service) datasetHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.seq)
}

func (s *Service) parseSetup(c web.C) (dataset.SetupID, error) {
	id, err := strconv.Atoi(c.URLParams["setup"])
	if err != nil {
		return 0, fmt.Errorf("bad setup %q", c.URLParams["setup"])
	}
	if _, found := s.seq.Setup(dataset.SetupID(id)); !found {
		return 0, fmt.Errorf("no setup %d in dataset", id)
	}
	return dataset.SetupID(id), nil
}

type levelInfo struct {
	Dims     bv.Point3d
	TileSize bv.Point3d
	NumTiles bv.Point3d
}

func (s *Service) setupHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	id, err := s.parseSetup(c)
	if err != nil {
		BadRequest(w, r, "%v", err)
		return
	}
	src, err := s.loader.Source(id)
	if err != nil {
		BadRequest(w, r, "%v", err)
		return
	}
	setup, _ := s.seq.Setup(id)
	levels := make([]levelInfo, src.LevelCount())
	for l := range levels {
		levels[l] = levelInfo{
			Dims:     src.LevelDims(l),
			TileSize: src.TileSize(l),
			NumTiles: src.NumTiles(l),
		}
	}
	writeJSON(w, r, struct {
		Setup      dataset.Setup
		Timepoints int
		Levels     []levelInfo
	}{setup, src.Timepoints(), levels})
}

func (s *Service) tileHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	id, err := s.parseSetup(c)
	if err != nil {
		BadRequest(w, r, "%v", err)
		return
	}
	t, err := strconv.Atoi(c.URLParams["t"])
	if err != nil {
		BadRequest(w, r, "bad timepoint %q", c.URLParams["t"])
		return
	}
	level, err := strconv.Atoi(c.URLParams["level"])
	if err != nil {
		BadRequest(w, r, "bad level %q", c.URLParams["level"])
		return
	}
	coord, err := bv.StringToTileCoord(c.URLParams["coord"], "_")
	if err != nil {
		BadRequest(w, r, "%v", err)
		return
	}
	mode := loader.Blocking
	if r.URL.Query().Get("nonblocking") == "true" {
		mode = loader.NonBlocking
	}

	view := dataset.ViewID{Timepoint: t, Setup: id}
	cell, err := s.loader.Tile(r.Context(), view, level, coord, mode)
	if errors.Is(err, loader.ErrMissingView) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		BadRequest(w, r, "%v", err)
		return
	}
	header := cell.Header()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Pixel-Type", header.PixelType.String())
	w.Header().Set("X-Tile-Min", fmt.Sprintf("%d_%d_%d", header.Min[0], header.Min[1], header.Min[2]))
	w.Header().Set("X-Tile-Size", fmt.Sprintf("%d_%d_%d", header.Size[0], header.Size[1], header.Size[2]))
	w.Header().Set("X-Tile-Valid", strconv.FormatBool(header.Valid))
	if header.Valid {
		w.Write(cell.Bytes())
	}
}

func (s *Service) cacheHandler(w http.ResponseWriter, r *http.Request) {
	var spill *cache.SpillStats
	if s.spill != nil {
		stats := s.spill.Stats()
		spill = &stats
	}
	writeJSON(w, r, struct {
		Sources []cache.Stats
		Spill   *cache.SpillStats
	}{s.loader.Stats(), spill})
}
