// Package channel provides a resilient client for a single topic on a
// Phoenix-style channels server.
//
// A Client owns one logical subscription. It dials the websocket endpoint,
// sends the join envelope, hands every inbound event to a Handler and, when
// the connection drops, waits a fixed delay before dialling again. It keeps
// doing so until the context passed to Run is cancelled.
//
// # State machine
//
//	Disconnected → Connecting → Joining → Subscribed
//	      ↑             │           │           │
//	      └─────────────┴───────────┴───────────┘   (after ReconnectDelay)
//
// There is no terminal state. Run returns only when its context is cancelled.
//
// # Wire format
//
// Frames are JSON text frames:
//
//	{"topic": "bookmark:feed", "event": "phx_join", "payload": {}, "ref": "1"}
//
// Inbound frames in the Phoenix v2 array form
// ([join_ref, ref, topic, event, payload]) are accepted as well.
//
// # Failure policy
//
//   - Dial failures (ErrConnect) and connection drops (ErrConnectionLost) are
//     logged and retried after ReconnectDelay, forever.
//   - A rejected join (ErrJoinRejected) ends the session and is retried.
//   - Malformed frames (ErrMalformedMessage) are logged and skipped; the
//     connection is kept.
//   - Handler errors and panics (ErrHandlerFailure) are logged and the next
//     message is processed normally.
//
// # Usage
//
//	topic, err := channel.TagTopic("rust")
//	if err != nil {
//	    return err
//	}
//	client, err := channel.NewClient(channel.Config{
//	    URL:   "ws://localhost:4000/socket/websocket",
//	    Topic: topic,
//	}, channel.HandlerFunc(func(ctx context.Context, event string, payload channel.Payload) error {
//	    fmt.Println(event, payload.Value())
//	    return nil
//	}))
//	if err != nil {
//	    return err
//	}
//	return client.Run(ctx)
//
// Multiple topics are served by running several independent clients; a
// client never multiplexes topics over one connection.
package channel
