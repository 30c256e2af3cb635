package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/toeic4all/question-api/pkg/question"
	"github.com/toeic4all/question-api/pkg/redisstore"
)

// TTL per operation class: item and list queries are short-lived, aggregate
// counts a bit longer, metadata enumerations the longest.
const (
	questionTTL = time.Hour
	countTTL    = 2 * time.Hour
	metadataTTL = 24 * time.Hour
)

// Unset filter fields render as fixed sentinels so the same logical query
// always produces the same key. Scalars render as "None" and an absent
// Part 7 passage-type list as "none"; inspection tooling built against the
// deployed key shapes depends on the distinction.
const (
	unsetField     = "None"
	noPassageTypes = "none"
)

func orNone(s string) string {
	if s == "" {
		return unsetField
	}
	return s
}

// CachedService fronts the raw query collaborator with per-resource
// cache-aside stores. Cache failures are never fatal: a read or write error
// degrades to the raw path. Answer lookups bypass the cache entirely in both
// directions.
type CachedService struct {
	raw      Service
	part5    *redisstore.Cache
	part6    *redisstore.Cache
	part7    *redisstore.Cache
	metadata *redisstore.Cache
	group    singleflight.Group
}

// NewCachedService builds the facade over the shared Redis connection.
func NewCachedService(raw Service, client *redis.Client) *CachedService {
	return &CachedService{
		raw:      raw,
		part5:    redisstore.NewCache(client, "part5", questionTTL),
		part6:    redisstore.NewCache(client, "part6", questionTTL),
		part7:    redisstore.NewCache(client, "part7", questionTTL),
		metadata: redisstore.NewCache(client, "metadata", metadataTTL),
	}
}

// listThrough is the shared cache-aside read path for list-shaped queries:
// consult the cache, collapse concurrent identical misses, call the raw
// collaborator, and cache only non-empty results so negative results are
// never pinned.
func listThrough[T any](ctx context.Context, c *CachedService, cache *redisstore.Cache, key string, ttl time.Duration, load func() ([]T, error)) ([]T, error) {
	var cached []T
	if found, err := cache.GetInto(ctx, key, &cached); err != nil {
		log.Debugf("cache read for %s:%s failed, falling back to store: %v", cache.Namespace(), key, err)
	} else if found {
		log.Debugf("cache hit for %s:%s", cache.Namespace(), key)
		return cached, nil
	}

	v, err, _ := c.group.Do(cache.Namespace()+":"+key, func() (interface{}, error) {
		results, err := load()
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			if err := cache.Set(ctx, key, results, ttl); err != nil {
				log.Debugf("cache write for %s:%s failed: %v", cache.Namespace(), key, err)
			}
		}
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]T), nil
}

// countThrough is the cache-aside path for aggregate counts. A zero count is
// still a valid count and is cached.
func countThrough(ctx context.Context, c *CachedService, cache *redisstore.Cache, key string, load func() (int64, error)) (int64, error) {
	var cached int64
	if found, err := cache.GetInto(ctx, key, &cached); err != nil {
		log.Debugf("cache read for %s:%s failed, falling back to store: %v", cache.Namespace(), key, err)
	} else if found {
		return cached, nil
	}

	n, err := load()
	if err != nil {
		return 0, err
	}
	if err := cache.Set(ctx, key, n, countTTL); err != nil {
		log.Debugf("cache write for %s:%s failed: %v", cache.Namespace(), key, err)
	}
	return n, nil
}

func part5ListKey(f Part5Filter, limit, page int) string {
	return fmt.Sprintf("qs:%s:%s:%s:%s:%d:%d",
		orNone(f.Category), orNone(f.Subtype), orNone(f.Difficulty), orNone(f.Keyword), limit, page)
}

// ListPart5 returns Part 5 questions, served from the cache when useCache is
// set and the key is warm.
func (c *CachedService) ListPart5(ctx context.Context, f Part5Filter, limit, page int, useCache bool) ([]question.Part5Question, error) {
	if !useCache {
		return c.raw.ListPart5(ctx, f, limit, page)
	}
	return listThrough(ctx, c, c.part5, part5ListKey(f, limit, page), questionTTL, func() ([]question.Part5Question, error) {
		return c.raw.ListPart5(ctx, f, limit, page)
	})
}

func (c *CachedService) CountPart5(ctx context.Context, f Part5Filter, useCache bool) (int64, error) {
	if !useCache {
		return c.raw.CountPart5(ctx, f)
	}
	key := fmt.Sprintf("count:%s:%s:%s:%s",
		orNone(f.Category), orNone(f.Subtype), orNone(f.Difficulty), orNone(f.Keyword))
	return countThrough(ctx, c, c.part5, key, func() (int64, error) {
		return c.raw.CountPart5(ctx, f)
	})
}

// Part5Answer is never cached: sensitive-content freshness takes precedence
// over cache savings.
func (c *CachedService) Part5Answer(ctx context.Context, id string) (*question.Answer, error) {
	return c.raw.Part5Answer(ctx, id)
}

func (c *CachedService) Part5Categories(ctx context.Context, useCache bool) ([]string, error) {
	if !useCache {
		return c.raw.Part5Categories(ctx)
	}
	return listThrough(ctx, c, c.metadata, "categories", metadataTTL, func() ([]string, error) {
		return c.raw.Part5Categories(ctx)
	})
}

func (c *CachedService) Part5Subtypes(ctx context.Context, category string, useCache bool) ([]string, error) {
	if !useCache {
		return c.raw.Part5Subtypes(ctx, category)
	}
	key := "subtypes:" + orNone(category)
	return listThrough(ctx, c, c.metadata, key, metadataTTL, func() ([]string, error) {
		return c.raw.Part5Subtypes(ctx, category)
	})
}

func (c *CachedService) Part5Difficulties(ctx context.Context, useCache bool) ([]string, error) {
	if !useCache {
		return c.raw.Part5Difficulties(ctx)
	}
	return listThrough(ctx, c, c.metadata, "difficulties", metadataTTL, func() ([]string, error) {
		return c.raw.Part5Difficulties(ctx)
	})
}

func (c *CachedService) ListPart6Sets(ctx context.Context, f Part6Filter, limit, page int, useCache bool) ([]question.Part6Set, error) {
	if !useCache {
		return c.raw.ListPart6Sets(ctx, f, limit, page)
	}
	key := fmt.Sprintf("sets:%s:%s:%d:%d", orNone(f.PassageType), orNone(f.Difficulty), limit, page)
	return listThrough(ctx, c, c.part6, key, questionTTL, func() ([]question.Part6Set, error) {
		return c.raw.ListPart6Sets(ctx, f, limit, page)
	})
}

func (c *CachedService) CountPart6Sets(ctx context.Context, f Part6Filter, useCache bool) (int64, error) {
	if !useCache {
		return c.raw.CountPart6Sets(ctx, f)
	}
	key := fmt.Sprintf("count:%s:%s", orNone(f.PassageType), orNone(f.Difficulty))
	return countThrough(ctx, c, c.part6, key, func() (int64, error) {
		return c.raw.CountPart6Sets(ctx, f)
	})
}

// Part6Answer is never cached.
func (c *CachedService) Part6Answer(ctx context.Context, setID string, seq int) (*question.Answer, error) {
	return c.raw.Part6Answer(ctx, setID, seq)
}

func (c *CachedService) Part6PassageTypes(ctx context.Context, useCache bool) ([]string, error) {
	if !useCache {
		return c.raw.Part6PassageTypes(ctx)
	}
	return listThrough(ctx, c, c.metadata, "passage_types", metadataTTL, func() ([]string, error) {
		return c.raw.Part6PassageTypes(ctx)
	})
}

func (c *CachedService) Part6Difficulties(ctx context.Context, passageType string, useCache bool) ([]string, error) {
	if !useCache {
		return c.raw.Part6Difficulties(ctx, passageType)
	}
	key := "part6_difficulties:" + orNone(passageType)
	return listThrough(ctx, c, c.metadata, key, metadataTTL, func() ([]string, error) {
		return c.raw.Part6Difficulties(ctx, passageType)
	})
}

func part7ListKey(f Part7Filter, limit, page int) string {
	passageTypes := noPassageTypes
	if len(f.PassageTypes) > 0 {
		passageTypes = strings.Join(f.PassageTypes, ",")
	}
	return fmt.Sprintf("sets:%s:%s:%s:%d:%d",
		orNone(f.SetType), passageTypes, orNone(f.Difficulty), limit, page)
}

// ListPart7Sets clamps the limit by the set type's cap before the key is
// built, so an oversized request shares the cache entry of the capped one.
func (c *CachedService) ListPart7Sets(ctx context.Context, f Part7Filter, limit, page int, useCache bool) ([]question.Part7Set, error) {
	limit = ClampPart7Limit(f.SetType, limit)
	if !useCache {
		return c.raw.ListPart7Sets(ctx, f, limit, page)
	}
	return listThrough(ctx, c, c.part7, part7ListKey(f, limit, page), questionTTL, func() ([]question.Part7Set, error) {
		return c.raw.ListPart7Sets(ctx, f, limit, page)
	})
}

func (c *CachedService) CountPart7Sets(ctx context.Context, f Part7Filter, useCache bool) (int64, error) {
	if !useCache {
		return c.raw.CountPart7Sets(ctx, f)
	}
	passageTypes := noPassageTypes
	if len(f.PassageTypes) > 0 {
		passageTypes = strings.Join(f.PassageTypes, ",")
	}
	key := fmt.Sprintf("count:%s:%s:%s", orNone(f.SetType), passageTypes, orNone(f.Difficulty))
	return countThrough(ctx, c, c.part7, key, func() (int64, error) {
		return c.raw.CountPart7Sets(ctx, f)
	})
}

// Part7Answer is never cached.
func (c *CachedService) Part7Answer(ctx context.Context, setID string, seq int) (*question.Answer, error) {
	return c.raw.Part7Answer(ctx, setID, seq)
}

func (c *CachedService) Part7SetTypes(ctx context.Context, useCache bool) ([]string, error) {
	if !useCache {
		return c.raw.Part7SetTypes(ctx)
	}
	return listThrough(ctx, c, c.metadata, "set_types", metadataTTL, func() ([]string, error) {
		return c.raw.Part7SetTypes(ctx)
	})
}

func (c *CachedService) Part7PassageTypes(ctx context.Context, setType string, useCache bool) ([]string, error) {
	if !useCache {
		return c.raw.Part7PassageTypes(ctx, setType)
	}
	key := "part7_passage_types:" + orNone(setType)
	return listThrough(ctx, c, c.metadata, key, metadataTTL, func() ([]string, error) {
		return c.raw.Part7PassageTypes(ctx, setType)
	})
}

func (c *CachedService) Part7PassageCombinations(ctx context.Context, setType string, useCache bool) ([][]string, error) {
	if !useCache {
		return c.raw.Part7PassageCombinations(ctx, setType)
	}
	key := "passage_combinations:" + orNone(setType)
	return listThrough(ctx, c, c.metadata, key, metadataTTL, func() ([][]string, error) {
		return c.raw.Part7PassageCombinations(ctx, setType)
	})
}

func (c *CachedService) Part7Difficulties(ctx context.Context, setType string, useCache bool) ([]string, error) {
	if !useCache {
		return c.raw.Part7Difficulties(ctx, setType)
	}
	key := "part7_difficulties:" + orNone(setType)
	return listThrough(ctx, c, c.metadata, key, metadataTTL, func() ([]string, error) {
		return c.raw.Part7Difficulties(ctx, setType)
	})
}

// ClearCache deletes all keys of one resource category, or of every category
// when resource is empty. Returns the number of keys removed.
func (c *CachedService) ClearCache(ctx context.Context, resource string) (int, error) {
	switch resource {
	case "part5":
		return c.clear(ctx, c.part5)
	case "part6":
		return c.clear(ctx, c.part6)
	case "part7":
		return c.clear(ctx, c.part7)
	case "metadata":
		return c.clear(ctx, c.metadata)
	case "":
		total := 0
		for _, r := range []string{"part5", "part6", "part7", "metadata"} {
			n, err := c.ClearCache(ctx, r)
			if err != nil {
				return total, err
			}
			total += n
		}
		return total, nil
	default:
		return 0, errors.Errorf("unknown cache resource %q", resource)
	}
}

func (c *CachedService) clear(ctx context.Context, cache *redisstore.Cache) (int, error) {
	keys, err := cache.Keys(ctx, "*")
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		ok, err := cache.Delete(ctx, k)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	log.Infof("cleared %d cache entries under %q", removed, cache.Namespace())
	return removed, nil
}
