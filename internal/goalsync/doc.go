// Package goalsync keeps a local, filtered view of the signed-in user's
// goals consistent with the backend.
//
// # Overview
//
// A Service owns the cached goal list for one view. It fetches the list
// with bounded exponential backoff, refetches whenever the realtime feed
// reports a change to one of the user's goals, and applies edits locally
// before the backend confirms them, rolling back on failure.
//
// State machine
//
//	Idle ──session──▶ Loading ──ok──▶ Ready
//	                     │               │ realtime event / Refresh
//	                   error             ▼
//	                     ▼            Loading
//	               Reconnecting ──ok──▶ Ready
//	                     │
//	              retries exhausted
//	                     ▼
//	                  Failed ──Refresh──▶ Loading
//
// Any state returns to Idle when the session ends.
//
// Every fetch runs a health probe first. A probe failure counts as a fetch
// failure. Retry n waits BaseDelay * 2^n; after MaxRetries failed retries the
// view enters Failed, a single persistent notice is issued, and realtime
// events are ignored until Refresh is called.
//
// Usage
//
//	svc := goalsync.New(client, sessions, goalsync.WithNotifier(ui))
//	defer svc.Close()
//
//	stop := svc.OnChange(func(st goalsync.State) {
//	    render(st.Goals, st.Stats)
//	})
//	defer stop()
//
//	if _, err := svc.AddGoal(ctx, schema.GoalInput{Title: "Run 5k"}); err != nil {
//	    return err // already reported through the notifier
//	}
//
// # Concurrency
//
// One goroutine owns the fetch state machine. Realtime callbacks, session
// changes, filter changes and manual refreshes reach it as signals on
// buffered channels, so none of the public methods block on it. A fetch
// result is applied only if no newer fetch has started since; older
// results are discarded.
//
// Mutations run on the caller's goroutine. Concurrent edits to the same
// goal are not merged: the last local write wins until the next fetch.
//
// Listeners registered with OnChange are called from a single goroutine
// with copies of the state. Intermediate states may be coalesced. No
// listener runs after Close returns.
package goalsync
