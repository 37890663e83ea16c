/*
Package server loads the bioview configuration and serves an assembled dataset
over HTTP for remote viewers.  The web API is read-only:

	GET /api/about                                 version and registered formats
	GET /api/dataset                               the assembled dataset as JSON
	GET /api/setup/<id>                            a setup with its resolution levels
	GET /api/tile/<setup>/<t>/<level>/<x>_<y>_<z>  raw little-endian samples of a tile
	GET /api/cache                                 cache statistics

Tile requests wait for the tile to be decoded unless the "nonblocking=true" query
string is given, in which case an uncached tile is returned with X-Tile-Valid set
to false and filled in the background.
*/
package server
