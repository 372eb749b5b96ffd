// Package chunk splits long text into ordered pieces that fit a per-message
// size limit, breaking at line boundaries whenever possible.
package chunk
