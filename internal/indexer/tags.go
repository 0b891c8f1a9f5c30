package indexer

import (
	"sort"

	"github.com/rs/zerolog"

	"pictor/internal/catalog"
	"pictor/internal/events"
	"pictor/internal/models"
)

// TagIngestor makes the catalog's tag data consistent with the keyword
// lists extracted for a set of images. Tags and core metadata fail
// independently: a problem here never rolls back persisted metadata.
type TagIngestor struct {
	store catalog.Store
	refs  *ReferenceCache
	bus   *events.Broker
	log   zerolog.Logger
}

// NewTagIngestor creates a tag ingestor.
func NewTagIngestor(store catalog.Store, refs *ReferenceCache, bus *events.Broker, log zerolog.Logger) *TagIngestor {
	return &TagIngestor{
		store: store,
		refs:  refs,
		bus:   bus,
		log:   log.With().Str("component", "tags").Logger(),
	}
}

// AddTags ingests an imageID -> keywords mapping: unseen keywords become
// Tag rows, and every listed image gets its complete association set
// replaced in one transaction. Keywords dropped at the source are thereby
// dropped from the catalog, not merged over.
func (t *TagIngestor) AddTags(imageKeywords map[int64][]string) error {
	// Only images already written to the catalog can carry associations.
	imageIDs := make([]int64, 0, len(imageKeywords))
	for id := range imageKeywords {
		if id != 0 {
			imageIDs = append(imageIDs, id)
		}
	}
	if len(imageIDs) == 0 {
		return nil
	}
	sort.Slice(imageIDs, func(i, j int) bool { return imageIDs[i] < imageIDs[j] })

	if err := t.createMissingTags(imageKeywords); err != nil {
		// Association rebuild still proceeds with whatever tags the
		// cache does hold.
		t.log.Error().Err(err).Msg("Creating tags failed")
	}

	assocs := make([]models.ImageTag, 0, len(imageIDs))
	for _, imageID := range imageIDs {
		seen := make(map[int64]bool)
		for _, kw := range imageKeywords[imageID] {
			tag := t.refs.LookupTag(kw)
			if tag == nil || seen[tag.ID] {
				continue
			}
			seen[tag.ID] = true
			assocs = append(assocs, models.ImageTag{ImageID: imageID, TagID: tag.ID})
		}
	}

	t.log.Debug().Int("images", len(imageIDs)).Int("associations", len(assocs)).
		Msg("Rebuilding image tags")

	if err := t.store.ReplaceImageTags(imageIDs, assocs); err != nil {
		t.log.Error().Err(err).Msg("Rebuilding image tags failed")
		return err
	}

	// Committed; let the full-text index know tag data moved.
	if t.bus != nil {
		t.bus.Publish(events.TagDataChanged)
	}
	return nil
}

// createMissingTags bulk-creates previously-unseen keywords as
// metadata-derived tags and caches them.
func (t *TagIngestor) createMissingTags(imageKeywords map[int64][]string) error {
	distinct := make(map[string]bool)
	var keywords []string
	for _, kws := range imageKeywords {
		for _, kw := range kws {
			if kw != "" && !distinct[kw] {
				distinct[kw] = true
				keywords = append(keywords, kw)
			}
		}
	}

	missing, err := t.refs.MissingTagKeywords(keywords)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	newTags := make([]*models.Tag, 0, len(missing))
	for _, kw := range missing {
		newTags = append(newTags, &models.Tag{Keyword: kw, TagType: models.TagTypeExif})
	}

	t.log.Debug().Int("count", len(newTags)).Msg("Adding tags")

	if err := t.store.InsertTagBatch(newTags); err != nil {
		return err
	}

	t.refs.StoreTags(newTags)
	return nil
}
