package mirror

import "github.com/quillchat/quill/internal/api"

// View is the capability a message list view exposes to its account store.
// The store pushes relevant events through it and never calls back into UI
// code any other way.
type View interface {
	// MaybeAddMessage offers a newly posted message; the view decides on its
	// own criteria whether to incorporate it.
	MaybeAddMessage(msg api.Message)
	// Reassemble recomputes any derived presentation state from the current
	// snapshot without touching the network.
	Reassemble()
}
