package server

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/janelia-flyem/bioview/bv"
	"github.com/janelia-flyem/bioview/cache"
	"github.com/janelia-flyem/bioview/dataset"
	"github.com/janelia-flyem/bioview/loader"
	"github.com/janelia-flyem/bioview/spatial"
)

const (
	// DefaultWebAddress is the default URL of the bioview web server
	DefaultWebAddress = "localhost:8000"
)

var (
	// the parsed TOML configuration data
	tc = defaultConfig()

	// the TOML config file location
	tcLocation string

	// the TOML config raw contents
	tcContent string
)

type tomlConfig struct {
	Server     serverConfig
	Logging    bv.LogConfig
	Cache      cache.Config
	Reader     readerConfig
	Convention spatial.Convention
	Channels   channelsConfig
}

type serverConfig struct {
	HTTPAddress string
	CorsDomains []string
}

type readerConfig struct {
	TileSize       bv.Point3d // zero components use the decoder's optimal tile size
	SwapZC         bool
	Is2D           bool
	FetcherThreads int
	Parallelism    int
}

type channelsConfig struct {
	Fallback dataset.FallbackPolicy
}

func defaultConfig() tomlConfig {
	return tomlConfig{
		Server: serverConfig{HTTPAddress: DefaultWebAddress},
		Cache: cache.Config{
			MaxCells:    cache.DefaultMaxCells,
			Spill:       cache.SpillNone,
			SpillMB:     cache.DefaultSpillMB,
			Compression: cache.CompressNone,
		},
		Reader: readerConfig{FetcherThreads: loader.DefaultFetcherThreads},
	}
}

func convertToAbsolute(path, dir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Abs(filepath.Join(dir, path))
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
func (c *tomlConfig) convertPathsToAbsolute(configPath string) error {
	var err error

	configDir := filepath.Dir(configPath)

	// [logging].logfile
	if c.Logging.Logfile != "" {
		c.Logging.Logfile, err = convertToAbsolute(c.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("Error converting logfile setting to absolute path")
		}
	}

	// [cache].path
	if c.Cache.Path != "" {
		c.Cache.Path, err = convertToAbsolute(c.Cache.Path, configDir)
		if err != nil {
			return fmt.Errorf("Error converting cache path setting to absolute path")
		}
	}
	return nil
}

// LoadConfig loads bioview configuration from a TOML file.  Settings absent from
// the file keep their defaults.
func LoadConfig(filename string) error {
	if filename == "" {
		return fmt.Errorf("no TOML configuration file provided")
	}
	c := defaultConfig()
	if _, err := toml.DecodeFile(filename, &c); err != nil {
		return fmt.Errorf("could not decode TOML config: %v", err)
	}

	fp, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer fp.Close()
	byteContents, err := io.ReadAll(fp)
	if err != nil {
		return err
	}

	if err := c.convertPathsToAbsolute(filename); err != nil {
		return fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	if err := c.validate(); err != nil {
		return err
	}
	tc = c
	tcLocation = filename
	tcContent = string(byteContents)
	bv.Infof("tomlConfig: %v\n", tc)
	return nil
}

func (c *tomlConfig) validate() error {
	switch c.Cache.Spill {
	case "", cache.SpillNone, cache.SpillMemory, cache.SpillDisk:
	default:
		return fmt.Errorf("unknown [cache] spill %q", c.Cache.Spill)
	}
	if c.Cache.Compression != "" && !c.Cache.Compression.Valid() {
		return fmt.Errorf("unknown [cache] compression %q", c.Cache.Compression)
	}
	for i, v := range c.Reader.TileSize {
		if v < 0 {
			return fmt.Errorf("[reader] tileSize component %d is negative", i)
		}
	}
	return nil
}

// ResetConfig restores the default configuration.
func ResetConfig() {
	tc = defaultConfig()
	tcLocation = ""
	tcContent = ""
}

func ConfigLocation() string {
	return tcLocation
}

func ConfigContent() string {
	return tcContent
}

func HTTPAddress() string {
	return tc.Server.HTTPAddress
}

func CorsDomains() []string {
	return tc.Server.CorsDomains
}

func LogConfig() bv.LogConfig {
	return tc.Logging
}

func CacheConfig() cache.Config {
	return tc.Cache
}

// SetHTTPAddress overrides the configured address unless addr is empty.
func SetHTTPAddress(addr string) {
	if addr != "" {
		tc.Server.HTTPAddress = addr
	}
}

func SetSwapZC(swap bool) {
	tc.Reader.SwapZC = swap
}

func SetFallback(policy dataset.FallbackPolicy) {
	tc.Channels.Fallback = policy
}

// AssembleOptions returns the dataset assembly options of the configuration.
func AssembleOptions() dataset.Options {
	return dataset.Options{
		Convention:  tc.Convention,
		Fallback:    tc.Channels.Fallback,
		Parallelism: tc.Reader.Parallelism,
	}
}

// LoaderOptions returns the loader options of the configuration using the given
// spill tier.
func LoaderOptions(spill cache.Spill) loader.Options {
	return loader.Options{
		TileSize:       tc.Reader.TileSize,
		SwapZC:         tc.Reader.SwapZC,
		Is2D:           tc.Reader.Is2D,
		MaxCells:       tc.Cache.MaxCells,
		Spill:          spill,
		FetcherThreads: tc.Reader.FetcherThreads,
	}
}
