// Package sync coordinates the local cache, the review server and the retry
// queue for the offline restaurant client.
//
// Reads go to the server first and fall back to the cache when it cannot be
// reached. Writes are committed to the cache before the server is tried, and
// writes the server did not accept are queued for replay. Network failures
// never surface to callers; a missing restaurant does.
//
// Review reads return the cached reviews immediately while a background task
// fetches the server's reviews and merges them into the cache. Callers that
// need fresh data re-query after the merge, which is announced through
// Events.OnReviewsReconciled.
package sync
