// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoToken indicates a tenant has no usable credential. It is a
// configuration failure, not a transient one, so callers must not retry.
var ErrNoToken = errors.New("no access token available")

// TokenProvider resolves the platform credential for a tenant. The sync
// engine resolves the token once per run and treats failure as fatal for
// that tenant.
type TokenProvider interface {
	Token(ctx context.Context, tenantID string) (string, error)
}

// StaticTokenProvider serves a single configured token for every tenant.
// Suitable for single-credential deployments and tests.
type StaticTokenProvider struct {
	token string
}

// NewStaticTokenProvider returns a provider backed by a fixed token.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

// Token implements TokenProvider.
func (p *StaticTokenProvider) Token(_ context.Context, tenantID string) (string, error) {
	if p.token == "" {
		return "", fmt.Errorf("tenant %s: %w", tenantID, ErrNoToken)
	}
	return p.token, nil
}

// CachingTokenProvider wraps another provider and memoizes per-tenant
// lookups. Resolution is lazy and guarded so concurrent tenant syncs share
// one lookup. Failed lookups are not cached.
type CachingTokenProvider struct {
	inner TokenProvider

	mu     sync.Mutex
	tokens map[string]string
}

// NewCachingTokenProvider wraps inner with a per-tenant cache.
func NewCachingTokenProvider(inner TokenProvider) *CachingTokenProvider {
	return &CachingTokenProvider{
		inner:  inner,
		tokens: make(map[string]string),
	}
}

// Token implements TokenProvider.
func (p *CachingTokenProvider) Token(ctx context.Context, tenantID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if token, ok := p.tokens[tenantID]; ok {
		return token, nil
	}

	token, err := p.inner.Token(ctx, tenantID)
	if err != nil {
		return "", err
	}
	p.tokens[tenantID] = token
	return token, nil
}

// Invalidate drops a tenant's cached token, forcing re-resolution on the
// next lookup.
func (p *CachingTokenProvider) Invalidate(tenantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tokens, tenantID)
}
