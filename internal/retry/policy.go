// Package retry decides whether a failed attempt is retried and how long to
// wait before the next one. All functions are safe for concurrent use.
package retry

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/phrazzld/sketchpad-api/internal/generation"
)

// Classifier reports whether an attempt error is worth retrying.
type Classifier func(err error) bool

// DefaultRetryableCodes are retried when no codes are configured.
var DefaultRetryableCodes = []generation.Code{
	generation.CodeTimeout,
	generation.CodeUnavailable,
	generation.CodeRateLimited,
	generation.CodeNetwork,
}

// CodeClassifier retries errors whose generation code is in codes. Errors
// that carry no classification (CodeUnknown) are retried; a job that keeps
// failing that way still ends once its attempts run out.
func CodeClassifier(codes []generation.Code) Classifier {
	if len(codes) == 0 {
		codes = DefaultRetryableCodes
	}
	set := make(map[generation.Code]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return func(err error) bool {
		if err == nil {
			return false
		}
		code := generation.CodeOf(err)
		if code == generation.CodeUnknown {
			return true
		}
		_, ok := set[code]
		return ok
	}
}

// ParseCodes converts configured code names.
func ParseCodes(names []string) []generation.Code {
	codes := make([]generation.Code, 0, len(names))
	for _, n := range names {
		codes = append(codes, generation.Code(n))
	}
	return codes
}

// Policy combines exponential backoff with a retry classifier.
type Policy struct {
	// Base is the delay unit; attempt n waits about Base * 2^n.
	Base time.Duration
	// Cap bounds the delay before jitter is applied.
	Cap time.Duration
	// Classifier decides which errors are retried.
	Classifier Classifier

	jitter func() float64
}

// NewPolicy creates a policy. A nil classifier uses DefaultRetryableCodes.
func NewPolicy(base, maxDelay time.Duration, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = CodeClassifier(nil)
	}
	return &Policy{
		Base:       base,
		Cap:        maxDelay,
		Classifier: classifier,
		jitter:     rand.Float64, //nolint:gosec // jitter does not need crypto rand
	}
}

// Backoff returns min(Base * 2^attempt, Cap) scaled by a random factor in
// [0.5, 1.5). Negative attempts count as zero.
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.Base) * math.Pow(2, float64(attempt))
	if p.Cap > 0 && d > float64(p.Cap) {
		d = float64(p.Cap)
	}

	jitter := p.jitter
	if jitter == nil {
		jitter = rand.Float64 //nolint:gosec // jitter does not need crypto rand
	}
	return time.Duration(d * (0.5 + jitter()))
}

// IsRetryable reports whether err should be retried.
func (p *Policy) IsRetryable(err error) bool {
	return p.Classifier(err)
}
