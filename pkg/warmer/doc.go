// Package warmer primes CDN caches for newly ranked trending videos.
//
// The trending job publishes one RankedEntryCreated event per entry after the
// ranking commits. The warmer consumes those events, resolves the video's
// manifest URL and issues a single bounded GET so the edge holds the manifest
// before clients ask for it. The result is written back to the ranked entry.
//
// # URL resolution
//
// Public videos are fetched through the CDN base URL. Every other visibility
// is fetched through a presigned S3 URL for the asset key (or the manifest
// path when no asset key is stored).
//
// # Outcomes
//
//   - warmed: 2xx or 3xx response; warmed_at is set
//   - failed: lookup, signing or request error, or any other status; the
//     reason is stored and the entry is not retried
//   - stale: the entry was replaced by a newer ranking before the result
//     could be recorded
//
// # Usage
//
//	w, err := warmer.New(cfg, store, s3Client, store, warmer.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	return w.Run(ctx, redisClient)
package warmer
