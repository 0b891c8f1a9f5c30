package indexer

import (
	"sync"

	"github.com/rs/zerolog"

	"pictor/internal/catalog"
	"pictor/internal/models"
)

// ReferenceCache resolves Camera, Lens and Tag rows by their natural keys,
// creating them on first sight. One load from the store per entity kind per
// process lifetime; after that, lookups are in-memory.
//
// All mutation happens under one mutex, so a check-then-create for the same
// key from two goroutines produces exactly one backing row. A failed first
// load is retried on the next call rather than poisoning the cache.
type ReferenceCache struct {
	store catalog.Store
	log   zerolog.Logger

	mu      sync.Mutex
	cameras map[string]*models.Camera
	lenses  map[string]*models.Lens
	tags    map[string]*models.Tag
}

// NewReferenceCache creates an unpopulated cache over the store.
func NewReferenceCache(store catalog.Store, log zerolog.Logger) *ReferenceCache {
	return &ReferenceCache{
		store: store,
		log:   log.With().Str("component", "refcache").Logger(),
	}
}

// Preload warms all three caches. Called once at startup; safe to skip, as
// each lookup populates lazily.
func (c *ReferenceCache) Preload() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureCamerasLocked(); err != nil {
		return err
	}
	if err := c.ensureLensesLocked(); err != nil {
		return err
	}
	return c.ensureTagsLocked()
}

// GetOrCreateCamera resolves a camera by make+model, creating and caching a
// new row on a miss. An empty key yields nil; nothing is created from
// degenerate input.
func (c *ReferenceCache) GetOrCreateCamera(make, model, serial string) (*models.Camera, error) {
	key := make + model
	if key == "" {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureCamerasLocked(); err != nil {
		return nil, err
	}

	if cam, ok := c.cameras[key]; ok {
		return cam, nil
	}

	cam := &models.Camera{Make: make, Model: model, Serial: serial}
	if err := c.store.CreateCamera(cam); err != nil {
		return nil, err
	}
	c.cameras[key] = cam
	return cam, nil
}

// GetOrCreateLens resolves a lens by make+model, creating on a miss.
func (c *ReferenceCache) GetOrCreateLens(make, model, serial string) (*models.Lens, error) {
	key := make + model
	if key == "" {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureLensesLocked(); err != nil {
		return nil, err
	}

	if lens, ok := c.lenses[key]; ok {
		return lens, nil
	}

	lens := &models.Lens{Make: make, Model: model, Serial: serial}
	if err := c.store.CreateLens(lens); err != nil {
		return nil, err
	}
	c.lenses[key] = lens
	return lens, nil
}

// GetOrCreateTag resolves a single tag by keyword, creating a row of the
// given type on a miss. Batch ingestion goes through MissingTagKeywords and
// InsertTagBatch instead; this is the one-off path for ad-hoc tagging.
func (c *ReferenceCache) GetOrCreateTag(keyword, tagType string) (*models.Tag, error) {
	if keyword == "" {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureTagsLocked(); err != nil {
		return nil, err
	}

	if tag, ok := c.tags[keyword]; ok {
		return tag, nil
	}

	tag := &models.Tag{Keyword: keyword, TagType: tagType}
	if err := c.store.InsertTagBatch([]*models.Tag{tag}); err != nil {
		return nil, err
	}
	c.tags[keyword] = tag
	return tag, nil
}

// LookupTag returns the cached tag for a keyword, or nil.
func (c *ReferenceCache) LookupTag(keyword string) *models.Tag {
	if keyword == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureTagsLocked(); err != nil {
		c.log.Error().Err(err).Msg("Loading tag cache failed")
		return nil
	}
	return c.tags[keyword]
}

// MissingTagKeywords filters the input down to keywords with no cached tag.
func (c *ReferenceCache) MissingTagKeywords(keywords []string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureTagsLocked(); err != nil {
		return nil, err
	}

	var missing []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if _, ok := c.tags[kw]; !ok {
			missing = append(missing, kw)
		}
	}
	return missing, nil
}

// StoreTags inserts freshly persisted tags into the cache so the next
// lookup for the same keyword is a hit.
func (c *ReferenceCache) StoreTags(tags []*models.Tag) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tags == nil {
		c.tags = make(map[string]*models.Tag, len(tags))
	}
	for _, tag := range tags {
		c.tags[tag.Keyword] = tag
	}
}

// CachedTags returns a snapshot of all cached tags.
func (c *ReferenceCache) CachedTags() []models.Tag {
	c.mu.Lock()
	defer c.mu.Unlock()

	tags := make([]models.Tag, 0, len(c.tags))
	for _, tag := range c.tags {
		tags = append(tags, *tag)
	}
	return tags
}

// ReloadTags re-reads the tag cache from the store. With force false it
// only populates an empty cache.
func (c *ReferenceCache) ReloadTags(force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if force {
		c.tags = nil
	}
	return c.ensureTagsLocked()
}

func (c *ReferenceCache) ensureCamerasLocked() error {
	if c.cameras != nil {
		return nil
	}
	cameras, err := c.store.AllCameras()
	if err != nil {
		return err
	}
	c.cameras = make(map[string]*models.Camera, len(cameras))
	for i := range cameras {
		cam := cameras[i]
		c.cameras[cam.CacheKey()] = &cam
	}
	return nil
}

func (c *ReferenceCache) ensureLensesLocked() error {
	if c.lenses != nil {
		return nil
	}
	lenses, err := c.store.AllLenses()
	if err != nil {
		return err
	}
	c.lenses = make(map[string]*models.Lens, len(lenses))
	for i := range lenses {
		lens := lenses[i]
		c.lenses[lens.CacheKey()] = &lens
	}
	return nil
}

func (c *ReferenceCache) ensureTagsLocked() error {
	if c.tags != nil {
		return nil
	}
	tags, err := c.store.AllTags()
	if err != nil {
		return err
	}
	c.tags = make(map[string]*models.Tag, len(tags))
	for i := range tags {
		tag := tags[i]
		c.tags[tag.Keyword] = &tag
	}
	if len(c.tags) > 0 {
		c.log.Debug().Int("count", len(c.tags)).Msg("Pre-loaded tag cache")
	}
	return nil
}
