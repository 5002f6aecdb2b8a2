/*
Package events provides the notification bus for hamster.

Every committed provider operation produces one or more events. They are the
only channel through which nodes learn what to run: a deployment.placed event
carries the node's peer id, public ip and the launch command, a
resource.heartbeat event acknowledges the node's liveness report.

# Architecture

	Publisher → Event Channel (buffer: 100)
	     ↓
	Broadcast Loop
	     ↓
	Subscriber Channels (buffer: 50 each) → websocket clients, KafkaSink

Publish blocks only while the broker's own buffer is full. A subscriber whose
buffer is full misses the event; the drop is counted in
hamster_events_dropped_total.

# Event types

	resource.registered     ResourceRegistered
	resource.heartbeat      ResourceHeartbeat
	resource.offline        ResourceLost (owner took the node down)
	resource.down           ResourceLost (heartbeat timeout)
	deployment.placed       DeploymentPlaced
	deployment.ended        DAppRef
	dapp.heartbeat          DAppRef
	dapp.stopped            DAppRef
	dapp.timeout            DAppRef
	redistribution.failed   RedistributionFailed

Events carry a uuid, the epoch in which they were produced and a typed Data
payload. JSON encoding of the whole Event is the wire format for both the
websocket stream and Kafka.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for event := range sub {
		fmt.Println(event.Type, event.ID)
	}

# Kafka

KafkaSink subscribes to the broker and writes each event to a topic with
segmentio/kafka-go, keyed by event type:

	sink, err := events.NewKafkaSink([]string{"localhost:9092"}, "hamster.events")
	if err != nil {
		return err
	}
	sink.Start(broker)
	defer sink.Stop()

Write failures are logged and the event is skipped.
*/
package events
