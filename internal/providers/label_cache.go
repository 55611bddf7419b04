package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flight-radar/internal/cache"
	"flight-radar/internal/logger"
	"flight-radar/internal/models"

	"github.com/rs/zerolog"
)

type cachedLabel struct {
	Found bool         `json:"found"`
	Label models.Label `json:"label"`
}

// CachedLabelProvider memoizes a LabelProvider, misses included, so repeated
// codes never reach the CDN within ttl.
type CachedLabelProvider struct {
	next  LabelProvider
	cache *cache.CacheManager
	ttl   time.Duration
	log   zerolog.Logger
}

func NewCachedLabelProvider(next LabelProvider, cm *cache.CacheManager, ttl time.Duration) *CachedLabelProvider {
	return &CachedLabelProvider{
		next:  next,
		cache: cm,
		ttl:   ttl,
		log:   logger.Component("label_cache"),
	}
}

func labelKey(kind models.LabelKind, code string) string {
	return fmt.Sprintf("label:%s:%s", kind, strings.ToUpper(strings.TrimSpace(code)))
}

func (p *CachedLabelProvider) LookupName(ctx context.Context, code string, kind models.LabelKind) (models.Label, bool) {
	key := labelKey(kind, code)

	var hit cachedLabel
	if found, err := p.cache.Get(key, &hit); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("Label cache read failed")
	} else if found {
		return hit.Label, hit.Found
	}

	label, ok := p.next.LookupName(ctx, code, kind)
	// A miss caused by our own deadline says nothing about the code.
	if !ok && ctx.Err() != nil {
		return models.Label{}, false
	}

	if err := p.cache.Set(key, cachedLabel{Found: ok, Label: label}, p.ttl); err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("Label cache write failed")
	}
	return label, ok
}

// Invalidate forgets one memoized label here and on peer replicas.
func (p *CachedLabelProvider) Invalidate(kind models.LabelKind, code string) error {
	return p.cache.Invalidate(labelKey(kind, code))
}

var _ LabelProvider = (*CachedLabelProvider)(nil)
