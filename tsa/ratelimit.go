// Copyright The Notary Project Authors.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tsa

import (
	"context"
	"crypto"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited bounds the request rate sent to a timestamper. Callers block
// until a request is allowed or ctx is done.
type RateLimited struct {
	Timestamper Timestamper
	limiter     *rate.Limiter
}

// NewRateLimited allows perSecond requests per second with the given burst.
func NewRateLimited(t Timestamper, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		Timestamper: t,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Timestamp implements Timestamper.
func (r *RateLimited) Timestamp(ctx context.Context, message []byte, hash crypto.Hash) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("timestamp rate limit: %w", err)
	}
	return r.Timestamper.Timestamp(ctx, message, hash)
}
