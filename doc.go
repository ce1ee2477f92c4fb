// Package flume is a client for the flume hosted activity-feed service.
//
// A [Client] is scoped to one application; [Client.Feed] hands out
// immutable feed handles that add and remove activities, manage the follow
// graph, read feed contents with enrichment, and subscribe to realtime
// change notifications over a shared websocket connection.
package flume
