// Package schema defines the records kept by the offline restaurant cache.
//
// # Records
//
// Three record kinds are persisted locally:
//
//   - Restaurant: keyed by the server-assigned id. Replaced wholesale on every
//     successful full fetch and mutated in place by favorite toggles.
//   - Review: keyed by a local key assigned by the cache on first insert. A
//     review may also carry a server identity (the "id" field) once the server
//     has accepted it. At most one cached review exists per server identity.
//   - QueuedRequest: a write intent that failed to reach the server and is
//     waiting for replay. Either a FavoriteUpdate or a ReviewSubmission.
//
// # Wire format
//
// Records use the JSON field names of the restaurant review server:
//
//	{
//	  "id": 7,
//	  "restaurant_id": 9,
//	  "name": "Steve",
//	  "rating": 4,
//	  "comments": "Great pizza",
//	  "createdAt": 1504095567183
//	}
//
// Timestamps are accepted either as RFC 3339 strings or as epoch milliseconds,
// and is_favorite is accepted either as a JSON boolean or as the strings
// "true"/"false".
package schema
