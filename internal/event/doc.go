/*
Package event provides a pub/sub event system for reconciliation progress.

Components publish what they change (settings, scene registrations, the
launcher file, lifecycle state) and the CLI, the watch loop and the plugin
HTTP routes subscribe to it, without depending on each other.

# Event Types

Reconciliation:
  - reconcile.started: a pass began
  - reconcile.finished: a pass ended, data carries the report

Lifecycle:
  - lifecycle.state: the process coordinator moved between states

Files:
  - setting.updated: a global.ini key was rewritten
  - launcher.written: the launcher registration file changed
  - scene.registered: a scene collection gained the launcher record
  - scene.failed: a scene collection could not be processed
  - scene.discovered: the watcher saw a new scene collection

# Basic Usage

	event.Publish(event.Event{
		Type: event.SceneRegistered,
		Data: event.SceneData{File: path},
	})

	unsubscribe := event.Subscribe(event.LifecycleChanged, func(e event.Event) {
		data := e.Data.(event.LifecycleChangedData)
		log.Info().Str("to", data.To).Msg("lifecycle")
	})
	defer unsubscribe()

Subscribers called through PublishSync run in the publisher's goroutine and
must not block or publish.

# Streaming

Every event is also marshalled to JSON and published on the watermill
GoChannel under Topic. Stream returns a channel of those messages; the
plugin server uses it for its server-sent events route.

	msgs, err := event.Stream(ctx)
	for msg := range msgs {
		fmt.Fprintf(w, "data: %s\n\n", msg.Payload)
		msg.Ack()
	}

# Testing

For isolation create a bus with NewBus, or call Reset to replace the global one.
*/
package event
