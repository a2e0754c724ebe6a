package shortener

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

// Base62 character set (0-9, A-Z, a-z) - 62 characters total
const base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// DefaultCodeLength is the length of generated codes
// 62^6 = ~56 billion combinations
const DefaultCodeLength = 6

// ExistsFunc reports whether a code is already taken (case-insensitive)
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// CodeGenerator generates short codes using cryptographically secure random numbers.
// Safe for concurrent use.
type CodeGenerator struct {
	length int // Length of generated codes
}

// NewCodeGenerator creates a new code generator with specified length.
// Lengths outside 4..12 fall back to the nearest bound.
func NewCodeGenerator(length int) *CodeGenerator {
	if length <= 0 {
		length = DefaultCodeLength
	}
	if length < 4 {
		length = 4
	}
	if length > 12 {
		length = 12
	}

	return &CodeGenerator{
		length: length,
	}
}

// Generate creates a random base62 code, each character drawn uniformly
func (g *CodeGenerator) Generate() string {
	result := make([]byte, g.length)
	max := big.NewInt(int64(len(base62Chars)))

	for i := 0; i < g.length; i++ {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(fmt.Sprintf("shortener: read random: %v", err))
		}
		result[i] = base62Chars[num.Int64()]
	}

	return string(result)
}

// Allocate generates codes until one is not taken.
// There is no retry cap; the loop stops on context cancellation or when
// the uniqueness check itself fails.
func (g *CodeGenerator) Allocate(ctx context.Context, exists ExistsFunc) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code := g.Generate()
		if IsReserved(code) {
			continue
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code uniqueness: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
}

// IsValid checks if a code contains only base62 characters and has the generator length
func (g *CodeGenerator) IsValid(code string) bool {
	if len(code) != g.length {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}
