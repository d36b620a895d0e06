// Package mqtt relays feed events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS validation and a payload size limit
//   - Last Will and Testament (LWT) plus a retained online/offline status
//     listing the relayed feed topics
//   - Health: down while disconnected, degraded after repeated publish
//     failures
//   - Relay: a supervisor sink and observer that republishes events and
//     subscription state
//
// # Topics
//
//	feedwatch/event/<channel topic>/<event>     event envelope (not retained)
//	feedwatch/subscription/<channel topic>/state current client state (retained)
//	feedwatch/system/status                     relay online/offline (retained)
//
// Channel topics keep their ':' separator, e.g.
// feedwatch/event/tag:go/bookmark:created.
//
// # Delivery
//
// Relaying is best effort. A publish failure is reported to the topic
// client as a handler failure and the event is not retried.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, sup.Topics())
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	relay := mqtt.NewRelay(client, client.QoS(), logger)
//	sup.AddSink("mqtt", relay)
//	sup.AddObserver(relay)
package mqtt
