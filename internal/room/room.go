// Package room handles room codes: normalization, generation and
// extraction from share links.
package room

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
)

// CodeLength is the length of generated room codes.
const CodeLength = 8

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

var ErrEmptyCode = errors.New("room code cannot be empty")

// Normalize trims and upper-cases a caller supplied code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Generate returns a random base36 code.
func Generate() (string, error) {
	var b strings.Builder
	b.Grow(CodeLength)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Parse accepts a bare code or a share link and returns the normalized code.
func Parse(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyCode
	}

	if strings.Contains(input, "://") || strings.Contains(input, ".") {
		code, err := FromURL(input)
		if err != nil {
			return "", err
		}
		return Normalize(code), nil
	}

	return Normalize(input), nil
}

// FromURL extracts the code from a link of the form https://<domain>/r/<code>.
func FromURL(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}

	path := strings.TrimSuffix(parsedURL.Path, "/")
	parts := strings.Split(path, "/")

	for i, part := range parts {
		if part == "r" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}

	return "", fmt.Errorf("could not extract room code from URL: %s", urlStr)
}

// Link builds the share link for code on domain.
func Link(domain, code string) string {
	return fmt.Sprintf("https://%s/r/%s", domain, code)
}
