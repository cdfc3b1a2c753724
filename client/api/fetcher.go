package api

import (
	"context"
	"errors"

	"Ariami/client/cache"
	"Ariami/logger"
)

// Fetcher serves song and artwork content cache-first, downloading on a
// miss and storing the result for next time.
type Fetcher struct {
	client *Client
	cache  *cache.Cache
}

// NewFetcher pairs a client with a content cache.
func NewFetcher(client *Client, c *cache.Cache) *Fetcher {
	return &Fetcher{client: client, cache: c}
}

// Song returns the full audio content for a song id.
func (f *Fetcher) Song(ctx context.Context, id string) ([]byte, error) {
	if data, ok := f.cache.Get(id, cache.ContentSong); ok {
		return data, nil
	}
	data, err := f.client.Stream(ctx, id, 0, 0)
	if err != nil {
		return nil, err
	}
	f.store(id, cache.ContentSong, data)
	return data, nil
}

// Artwork returns an album's artwork bytes.
func (f *Fetcher) Artwork(ctx context.Context, albumID string) ([]byte, error) {
	if data, ok := f.cache.Get(albumID, cache.ContentArtwork); ok {
		return data, nil
	}
	data, err := f.client.Artwork(ctx, albumID)
	if err != nil {
		return nil, err
	}
	f.store(albumID, cache.ContentArtwork, data)
	return data, nil
}

// store caches downloaded content. A full or oversized cache is not an
// error; playback already has the bytes.
func (f *Fetcher) store(id string, ct cache.ContentType, data []byte) {
	if err := f.cache.Put(id, ct, data); err != nil && !errors.Is(err, cache.ErrContentTooLarge) {
		logger.Warn("cache store failed", logger.String("id", id), logger.ErrorField(err))
	}
}
