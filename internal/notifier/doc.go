// Package notifier delivers rendered reports to recipients.
//
// A recipient string selects its channel:
//
//	ops@example.com            email (any address containing "@")
//	slack:#finance             slack channel (name or id)
//	telegram:-1001234567890/42 telegram chat, optional forum thread id
//	log:anything               the log transport
//
// Service.Send groups recipients by channel, rate limits, and retries each
// channel on its own so a slack outage never re-sends an email that already
// went out.
package notifier
