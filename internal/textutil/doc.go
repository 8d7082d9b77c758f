// Package textutil provides text normalization helpers for filesystem-safe
// naming. The audio stage uses it to derive episode file names from story
// titles.
package textutil
