// Package ratelimit implements fixed-window request limits per traffic class
// and client key.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Class is a traffic class with its own thresholds
type Class string

const (
	ClassRedirect Class = "redirect"
	ClassCreation Class = "creation"
	ClassAPI      Class = "api"
	ClassQR       Class = "qr"
)

// DefaultWindow is the fixed window length
const DefaultWindow = time.Minute

// Threshold is the per-window allowance of one class
type Threshold struct {
	Anonymous     int
	Authenticated int
}

// Limit returns the allowance for the caller kind
func (t Threshold) Limit(authenticated bool) int {
	if authenticated {
		return t.Authenticated
	}
	return t.Anonymous
}

// Policy maps classes to thresholds
type Policy map[Class]Threshold

// DefaultPolicy returns the built-in thresholds per minute
func DefaultPolicy() Policy {
	return Policy{
		ClassRedirect: {Anonymous: 60, Authenticated: 200},
		ClassCreation: {Anonymous: 5, Authenticated: 20},
		ClassAPI:      {Anonymous: 30, Authenticated: 100},
		ClassQR:       {Anonymous: 15, Authenticated: 50},
	}
}

// Limiter admits or rejects a request. The counter is incremented before
// the comparison, so the (limit+1)-th request in a window is rejected.
type Limiter interface {
	Allow(ctx context.Context, class Class, clientKey string, authenticated bool) (bool, error)
}

func windowKey(class Class, clientKey string) string {
	return fmt.Sprintf("%s:%s", class, clientKey)
}

func (p Policy) limit(class Class, authenticated bool) (int, error) {
	t, ok := p[class]
	if !ok {
		return 0, fmt.Errorf("ratelimit: unknown class %q", class)
	}
	return t.Limit(authenticated), nil
}
