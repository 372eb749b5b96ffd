// Package notifier queues branch notifications and delivers them through a
// transport.Adapter.
//
// A single worker drains the queue so messages arrive in the order they were
// enqueued. Sends are rate limited and never retried; a failed send is logged,
// published on the event bus and dropped. After each successful send the
// message is cross-posted when the service is configured to do so.
//
// The service keeps a short in-memory history of delivered messages for the
// status endpoint.
package notifier
