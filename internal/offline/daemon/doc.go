// Package daemon replays queued write intents against the review server.
//
// A Replayer reads the retry queue and sends each intent in the order the
// user made it:
//
//   - FavoriteUpdate:   PUT /restaurants/{id}?is_favorite={bool}
//   - ReviewSubmission: POST /reviews, then the server's record is cached
//     under the review's original local key
//
// An intent is removed from the queue only after the server has answered
// for it, so a crash or kill mid-pass leaves the undelivered tail queued.
// A pass stops at the first intent the server cannot take right now
// (unreachable or a 5xx response); that intent and everything after it stay
// where they are for the next pass. Intents the server rejects outright
// (4xx) are dropped and logged.
//
// Passes run on a timer, on demand through DrainNow, and whenever Notify is
// called. Every server call's result is passed to Config.Connectivity; with
// the sync coordinator there, a successful replay after an outage fires its
// reconnect hook, which calls Notify:
//
//	cfg := daemon.DefaultConfig()
//	cfg.Connectivity = coord
//	replayer, err := daemon.New(q, client, cache, cfg)
//	if err != nil {
//	    return err
//	}
//	coord.OnReconnect(replayer.Notify)
//	go replayer.Start(ctx)
package daemon
