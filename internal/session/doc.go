// Package session is the in-memory registry of chat sessions.
//
// # Ownership
//
// Every session belongs to exactly one identity (a chat user ID). All
// lookups take the identity as their first argument and never return a
// session owned by someone else. Lookup is the single owner-agnostic
// accessor and is reserved for annotating inbound notifications.
//
// # Lifecycle
//
//  1. Create: the working directory is resolved through a Resolver, a fresh
//     ID is allocated and the session becomes the identity's active one.
//  2. BeginWork / FinishWork / FailWork: bracket one assistant invocation.
//     BeginWork refuses a session that is already working or waiting.
//  3. MarkWaiting: an external event flags a working session as waiting
//     for input. It never moves an idle session.
//  4. Delete: the session's process is cancelled through the Canceller
//     before the record is removed.
//
// # Active session
//
// When the active session is deleted the replacement is the remaining
// session with the most recent activity, ties broken by the smallest ID.
// Deleting the last session clears the pointer.
package session
