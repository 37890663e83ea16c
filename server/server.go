package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/janelia-flyem/bioview/bv"
	"github.com/janelia-flyem/bioview/cache"
	"github.com/janelia-flyem/bioview/dataset"
	"github.com/janelia-flyem/bioview/loader"
	"github.com/zenazn/goji/web"
)

// Version is the bioview version reported by the about endpoint.
const Version = "0.1.0"

// Service is an assembled dataset with the loader and spill tier that deliver its
// pixels.
type Service struct {
	seq    *dataset.Sequence
	loader *loader.Loader
	spill  cache.Spill
	mux    *web.Mux

	mu       sync.Mutex
	http     *http.Server
	shutdown bool
}

// Open assembles the given image files using the current configuration and
// returns a service ready to handle requests.
func Open(ctx context.Context, paths []string) (*Service, error) {
	seq, err := dataset.Assemble(ctx, dataset.Inputs(paths...), AssembleOptions())
	if err != nil {
		return nil, err
	}
	return NewService(seq)
}

// NewService returns a service for an assembled dataset using the current
// configuration for caching and tile loading.
func NewService(seq *dataset.Sequence) (*Service, error) {
	spill, err := cache.NewSpill(CacheConfig())
	if err != nil {
		return nil, err
	}
	l, err := loader.New(seq, LoaderOptions(spill))
	if err != nil {
		if spill != nil {
			spill.Close()
		}
		return nil, err
	}
	s := &Service{
		seq:    seq,
		loader: l,
		spill:  spill,
	}
	s.initRoutes(CorsDomains())
	return s, nil
}

// Loader returns the loader delivering the service's pixels.
func (s *Service) Loader() *loader.Loader {
	return s.loader
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Serve listens and serves HTTP requests on the address until Shutdown.
func (s *Service) Serve(address string) error {
	if address == "" {
		address = DefaultWebAddress
	}
	l, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.ServeListener(l)
}

// ServeListener serves HTTP requests on l until Shutdown.  Stay-alive connections
// can't hog goroutines for more than an hour.
func (s *Service) ServeListener(l net.Listener) error {
	src := &http.Server{
		Handler:     s,
		ReadTimeout: 1 * time.Hour,
	}
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		l.Close()
		return nil
	}
	if s.http != nil {
		s.mu.Unlock()
		l.Close()
		return fmt.Errorf("service is already serving")
	}
	s.http = src
	s.mu.Unlock()

	bv.Infof("Web server listening at %s ...\n", l.Addr())
	if err := src.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones to finish or ctx
// to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	src := s.http
	s.mu.Unlock()
	if src == nil {
		return nil
	}
	return src.Shutdown(ctx)
}

// Close releases the loader, then the spill tier.  Call Shutdown first if the
// service is serving.
func (s *Service) Close() error {
	err := s.loader.Close()
	if s.spill != nil {
		if spillErr := s.spill.Close(); spillErr != nil && err == nil {
			err = fmt.Errorf("closing spill tier: %v", spillErr)
		}
	}
	return err
}
