// Package notifier delivers notification texts to the configured chat.
//
// A send is synchronous and attempted once: failures come back as
// *DeliveryError so the poll loop can log them and move on. The service
// applies a token-bucket rate limit, an optional dedup window for identical
// texts, and keeps a small in-memory history of recent sends for operator
// visibility.
package notifier
