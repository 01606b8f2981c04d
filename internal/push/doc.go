// Package push carries store change notifications to the components and UI
// clients that display store data.
//
// A Change only says "this row moved"; subscribers respond by re-reading the
// store. Because of that, dropping a change for a slow subscriber or delivering
// one twice is harmless, and Publish never blocks.
//
// Topics are OwnerTopic(id) for everything an owner can see and
// SessionTopic(id) for one session's messages. Broadcaster implements
// store.Notifier so it can be registered directly with a store.
package push
