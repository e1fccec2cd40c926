// Package preflight checks that chatsearch can run on this machine with
// the given configuration: a valid config and bot token, a writable data
// directory with free space, enough file descriptors for the indexes, and
// the state of the search daemon.
//
//	checker := preflight.New(cfg)
//	results := checker.RunAll(ctx)
//	if preflight.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
