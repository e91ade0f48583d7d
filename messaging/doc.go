// Package messaging moves chat messages between the wire and the
// application.
//
// Outbound, [Coordinator.Send] stamps an [Envelope] with the sender name and
// a UTC timestamp, encodes it as JSON, encrypts it with the recipient's RSA
// public key and hands the ciphertext to a [FrameSender]. Inbound,
// [Coordinator.Run] drains frames produced by a transport listener on a
// small pool of workers, decrypts each with the session key, decodes the
// envelope and publishes it to every open [Subscription].
//
// Each message walks a fixed sequence of [State] values. A failure ends that
// message only and is reported as a [*StageError] naming the state it could
// not reach; there is no retry.
//
//	coord := messaging.NewCoordinator(sender, session, messaging.Options{SenderName: "alice"})
//	sub := coord.Subscribe(0)
//	defer sub.Close()
//	go coord.Run(ctx, listener.Frames())
//	for env := range sub.C {
//	    fmt.Printf("%s: %s\n", env.Sender, env.Content)
//	}
package messaging
