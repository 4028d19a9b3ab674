// Package conversation is the thread conversation orchestrator.
//
// # Overview
//
// The Service sits between the platform frontends and the AI backend. For
// every incoming platform event it decides whether the message starts a
// session, continues one, is an aside, is ignored, or retracts prior output,
// then assembles the bounded context and dispatches the backend's reply.
//
// # Event flow
//
//	event -> classify (consults session store)
//	      -> directive parse / attachment resolve
//	      -> context assembly
//	      -> backend call
//	      -> response dispatch -> session store update
//
// Deletion events skip the pipeline and go straight to the cascade handler.
//
// # Ordering
//
// Events are serialized per thread by a keyed single-writer queue: each
// thread gets its own worker goroutine draining events in arrival order.
// Different threads process concurrently; turns within one thread never
// interleave. A deletion arriving while a backend call for the same thread is
// in flight simply queues behind it and retracts the recorded bot turn once
// the call completes.
//
// # Error policy
//
// Errors caused by user content (malformed directives, unsupported
// attachments) degrade gracefully and keep the conversation usable. Backend
// and transport failures produce a single visible in-thread notice and leave
// thread state without a partial bot turn.
package conversation
