// Package notify delivers engine notices: an asynchronous Dispatcher in front
// of an SMTP or log notifier, plus the message templates.
package notify
