// Package shellcache keeps the static shell of the web app available offline.
//
// A Worker owns one versioned cache store and moves through the lifecycle
//
//	uninstalled → installing → waiting → active → redundant
//
// Install fetches every manifest path and commits them to a fresh store in one
// atomic step; any failed asset aborts the install and leaves the previous
// store authoritative. Activate purges every store that does not belong to the
// worker's version and claims all open clients. While active, the worker is an
// http.RoundTripper that intercepts outgoing requests:
//
//   - navigations go to the network first and fall back to the cached root
//     document only when the network fetch itself fails
//   - every other GET is served cache-first; misses go to the network and are
//     never written back
//
// Registration plays the role of the hosting runtime: it holds the active and
// the waiting worker, promotes a waiting worker once it may activate, and
// retires the superseded one. Requests routed through it wait while a worker
// activates.
//
// # Basic Usage
//
//	storage := cachestore.NewMemoryStorage()
//	reg := shellcache.NewRegistration(http.DefaultTransport, nil)
//
//	worker, err := shellcache.New(shellcache.Config{
//		Origin:      "https://fairway.example",
//		Version:     "v12",
//		SkipWaiting: true,
//	}, storage, http.DefaultTransport, reg.Clients())
//	if err != nil {
//		return err
//	}
//
//	if err := reg.Update(ctx, worker); err != nil {
//		// Install failed, the previous shell keeps serving
//	}
//
//	client := &http.Client{Transport: reg}
package shellcache
