package application

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

// DefaultTokenTTL is how long a prefetch token stays valid.
const DefaultTokenTTL = 300 * time.Second

// TokenSigner issues and verifies stateless prefetch tokens. A token is a
// base64url JSON payload and an HMAC-SHA256 signature joined by a dot.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner creates a TokenSigner. A non-positive ttl uses DefaultTokenTTL.
func NewTokenSigner(secret []byte, ttl time.Duration) *TokenSigner {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenSigner{secret: secret, ttl: ttl, now: time.Now}
}

// Issue signs t and returns it with Token and CreatedAt filled in.
func (s *TokenSigner) Issue(t model.PrefetchToken) (model.PrefetchToken, error) {
	t.CreatedAt = s.now().UTC().Truncate(time.Millisecond)
	payload, err := json.Marshal(t)
	if err != nil {
		return model.PrefetchToken{}, fmt.Errorf("marshal prefetch token: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	t.Token = body + "." + base64.RawURLEncoding.EncodeToString(s.sign(body))
	return t, nil
}

// Verify checks the signature and age of a token and returns its payload.
func (s *TokenSigner) Verify(token string) (model.PrefetchToken, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok || body == "" || sig == "" {
		return model.PrefetchToken{}, ErrInvalidToken
	}
	gotSig, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(gotSig, s.sign(body)) {
		return model.PrefetchToken{}, ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return model.PrefetchToken{}, ErrInvalidToken
	}

	var t model.PrefetchToken
	if err := json.Unmarshal(payload, &t); err != nil {
		return model.PrefetchToken{}, ErrInvalidToken
	}
	t.Token = token

	if s.now().Sub(t.CreatedAt) > s.ttl {
		return t, ErrTokenExpired
	}
	return t, nil
}

func (s *TokenSigner) sign(body string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(body))
	return mac.Sum(nil)
}

// fingerprintPayload is the canonical form hashed into a filter fingerprint.
type fingerprintPayload struct {
	Filter  model.ActivityFilter `json:"filter"`
	PerPage int                  `json:"per_page"`
}

// FilterFingerprint hashes the canonical form of a filter together with the
// page size. Value order inside list filters does not matter.
func FilterFingerprint(f model.ActivityFilter, perPage int) (string, error) {
	c := canonicalFilter(f)
	payload, err := json.Marshal(fingerprintPayload{Filter: c, PerPage: perPage})
	if err != nil {
		return "", fmt.Errorf("marshal filter fingerprint: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalFilter(f model.ActivityFilter) model.ActivityFilter {
	f.Types = sortedCopy(f.Types)
	f.RepositoryIDs = sortedCopy(f.RepositoryIDs)
	f.LabelKeys = sortedCopy(f.LabelKeys)
	f.IssueTypeIDs = sortedCopy(f.IssueTypeIDs)
	f.MilestoneIDs = sortedCopy(f.MilestoneIDs)
	f.Statuses = sortedCopy(f.Statuses)
	f.Attention = sortedCopy(f.Attention)
	f.People = model.PeopleFilters{
		AuthorIDs:     sortedCopy(f.People.AuthorIDs),
		AssigneeIDs:   sortedCopy(f.People.AssigneeIDs),
		ReviewerIDs:   sortedCopy(f.People.ReviewerIDs),
		MentionedIDs:  sortedCopy(f.People.MentionedIDs),
		CommenterIDs:  sortedCopy(f.People.CommenterIDs),
		ReactorIDs:    sortedCopy(f.People.ReactorIDs),
		MaintainerIDs: sortedCopy(f.People.MaintainerIDs),
	}
	f.Search = strings.TrimSpace(f.Search)
	f.UpdatedFrom = f.UpdatedFrom.UTC()
	f.UpdatedTo = f.UpdatedTo.UTC()
	f.Thresholds = f.Thresholds.Normalize()
	if f.Sort == "" {
		f.Sort = model.SortUpdatedDesc
	}
	return f
}

func sortedCopy[T ~string](in []T) []T {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
