package identity

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"peakform/internal/sentinel"
	"peakform/pkg/requestcontext"
)

// defaultPageSize matches managed-provider list pagination.
const defaultPageSize = 100

// InMemoryProvider implements Provider over a process-local user map. Used
// by unit tests and development runs; production wires the real provider.
type InMemoryProvider struct {
	*Verifier

	mu       sync.RWMutex
	users    map[string]*User
	pageSize int
}

// InMemoryOption configures the in-memory provider.
type InMemoryOption func(*InMemoryProvider)

// WithPageSize overrides list pagination, so tests can exercise multi-page
// listings without hundreds of fixtures.
func WithPageSize(n int) InMemoryOption {
	return func(p *InMemoryProvider) {
		if n > 0 {
			p.pageSize = n
		}
	}
}

// NewInMemoryProvider creates an empty provider whose tokens are signed and
// verified with the given key/issuer pair.
func NewInMemoryProvider(signingKey, issuer string, opts ...InMemoryOption) *InMemoryProvider {
	p := &InMemoryProvider{
		users:    make(map[string]*User),
		pageSize: defaultPageSize,
	}
	p.Verifier = NewVerifier(signingKey, issuer, p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PutUser inserts or replaces a user record. Test/seed helper.
func (p *InMemoryProvider) PutUser(user *User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[user.UID] = cloneUser(user)
}

func (p *InMemoryProvider) GetUser(_ context.Context, uid string) (*User, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	user, ok := p.users[uid]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", uid, sentinel.ErrNotFound)
	}
	return cloneUser(user), nil
}

func (p *InMemoryProvider) GetUserByEmail(_ context.Context, email string) (*User, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, user := range p.users {
		if user.Email == email {
			return cloneUser(user), nil
		}
	}
	return nil, fmt.Errorf("user email %s: %w", email, sentinel.ErrNotFound)
}

// ListUsers pages through users in stable UID order. The page token is the
// offset of the next page, opaque to callers.
func (p *InMemoryProvider) ListUsers(_ context.Context, pageToken string) (*ListPage, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	uids := make([]string, 0, len(p.users))
	for uid := range p.users {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("page token %q: %w", pageToken, sentinel.ErrInvalidInput)
		}
		offset = n
	}
	if offset >= len(uids) {
		return &ListPage{}, nil
	}

	end := min(offset+p.pageSize, len(uids))
	page := &ListPage{Users: make([]User, 0, end-offset)}
	for _, uid := range uids[offset:end] {
		page.Users = append(page.Users, *cloneUser(p.users[uid]))
	}
	if end < len(uids) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// SetCustomClaims replaces the user's claim bag wholesale, matching
// provider semantics. Merge behavior lives in the callers that need it.
func (p *InMemoryProvider) SetCustomClaims(_ context.Context, uid string, claims map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.users[uid]
	if !ok {
		return fmt.Errorf("user %s: %w", uid, sentinel.ErrNotFound)
	}
	user.CustomClaims = cloneClaims(claims)
	return nil
}

// UpdateClaims applies update to the user's claim bag under the write lock,
// so concurrent read-modify-writes on the same user serialize instead of
// clobbering each other. update receives a copy and its result replaces the
// bag wholesale.
func (p *InMemoryProvider) UpdateClaims(_ context.Context, uid string, update func(claims map[string]any) map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.users[uid]
	if !ok {
		return fmt.Errorf("user %s: %w", uid, sentinel.ErrNotFound)
	}
	user.CustomClaims = cloneClaims(update(cloneClaims(user.CustomClaims)))
	return nil
}

// RevokeRefreshTokens stamps the revocation watermark: tokens issued before
// it fail VerifyToken(checkRevoked=true).
func (p *InMemoryProvider) RevokeRefreshTokens(ctx context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.users[uid]
	if !ok {
		return fmt.Errorf("user %s: %w", uid, sentinel.ErrNotFound)
	}
	user.TokensValidAfter = requestcontext.Now(ctx)
	return nil
}

func (p *InMemoryProvider) DeleteUser(_ context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.users[uid]; !ok {
		return fmt.Errorf("user %s: %w", uid, sentinel.ErrNotFound)
	}
	delete(p.users, uid)
	return nil
}

func cloneUser(u *User) *User {
	out := *u
	out.CustomClaims = cloneClaims(u.CustomClaims)
	out.MFAFactors = append([]SecondFactor(nil), u.MFAFactors...)
	return &out
}

func cloneClaims(claims map[string]any) map[string]any {
	if claims == nil {
		return nil
	}
	out := make(map[string]any, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out
}
