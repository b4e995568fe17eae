// Package secretcode generates the per-giver codes that gate a reveal.
//
// Codes protect wishlists and home addresses, so they come from crypto/rand.
// Bytes are drawn with rejection sampling: a byte is used only if it falls
// below the largest multiple of the alphabet size, which keeps every symbol
// equally likely (a plain modulo would favour the first 8 symbols of 62).
package secretcode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Alphabet is the 62 symbol set codes are drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultLength is the code length used unless configured otherwise.
// 62^8 is about 2.2e14, ample for a few hundred givers.
const DefaultLength = 8

// MinLength keeps misconfiguration from producing guessable codes.
const MinLength = 6

// Generator draws codes from a random reader.
type Generator struct {
	length int
	random io.Reader
}

// New returns a Generator reading from crypto/rand.
func New(length int) (*Generator, error) {
	return NewWithReader(length, rand.Reader)
}

// NewWithReader lets tests substitute the random stream.
func NewWithReader(length int, r io.Reader) (*Generator, error) {
	if length < MinLength {
		return nil, fmt.Errorf("secretcode: length must be at least %d, got %d", MinLength, length)
	}
	if r == nil {
		return nil, errors.New("secretcode: random reader must not be nil")
	}
	return &Generator{length: length, random: r}, nil
}

// Length returns the configured code length.
func (g *Generator) Length() int {
	return g.length
}

// Generate returns one code. Each call is independent.
func (g *Generator) Generate() (string, error) {
	const n = len(Alphabet)
	// 256 - 256%62 = 248; bytes 248..255 are discarded.
	const limit = 256 - 256%n

	out := make([]byte, 0, g.length)
	buf := make([]byte, g.length*2)
	for len(out) < g.length {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("secretcode: reading random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, Alphabet[int(b)%n])
			if len(out) == g.length {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateUnique returns count codes with no repeats among them.
func (g *Generator) GenerateUnique(count int) ([]string, error) {
	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		code, err := g.Generate()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}
