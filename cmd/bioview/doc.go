/*
Bioview assembles microscopy image files into one multi-view dataset and gives lazy,
tiled, cached access to their pixels at every resolution level.

Documentation can be found nicely formatted at http://godoc.org/github.com/janelia-flyem/bioview

Philosophy

Images from light-sheet and other microscopes arrive as many files, each holding one
or more series with several channels and timepoints.  Bioview scans every file once,
gives each distinct channel a single identity across files, and turns every
(series, channel) pair into a setup.  Pixels are never read during assembly.  A setup's
pixels are decoded a tile at a time when first requested, kept in a bounded cache,
and optionally spilled to memory or disk in compressed form.

Commands

In the following documentation, the type of brackets designate
<required parameter> and [optional parameter].

	bioview about

Prints the version and the image formats compiled into the executable.

	bioview [--config=/path/to/config.toml] [--fallback=merge|per-series] assemble <file> [file...]

Assembles the files and prints a summary of timepoints, channels and setups, along with
files that could not be read.  With --json the complete dataset is printed.

	bioview [--config=/path/to/config.toml] [--http=localhost:8000] serve <file> [file...]

Assembles the files and serves the dataset through the HTTP API described in the
server package until interrupted.

Configuration

A TOML file gives the [server], [logging], [cache], [reader], [convention] and
[channels] settings.  Every setting has a default, so the file is optional:

	[server]
	httpAddress = "localhost:8000"
	corsDomains = ["http://viewer.example.org"]

	[logging]
	logfile = "/demo/logs/bioview.log"
	max_log_size = 500 # MB
	max_log_age = 30   # days

	[cache]
	maxCells = 1024     # tiles kept in memory per setup
	spill = "disk"      # none, memory, or disk
	spillMB = 256       # capacity of a memory spill tier
	path = "spill"      # directory of a disk spill tier
	compression = "zstd" # none, snappy, or zstd

	[reader]
	tileSize = [512, 512, 1] # zero components use each file's optimal tile size
	swapZC = false
	is2D = false
	fetcherThreads = 4
	parallelism = 8

	[convention]
	positionUnit = "1 um"
	voxelSizeUnit = "1 um"
	positionIsCenter = false
	flip = [false, false, false]

	[channels]
	fallback = "merge"
*/
package main
