// Package push implements the client side of push-approval authentication.
//
// A push mechanism is registered once with the identity server, after which
// the server delivers challenges as signed JWTs through the platform
// notification service. The user answers each challenge with an accept or
// deny response, which is signed with the mechanism's shared secret and
// posted back to the server.
//
// # Registration
//
//	client, err := push.NewClient(push.Config{Timeout: 15 * time.Second})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Register(ctx, mechanism, deviceToken); err != nil {
//	    log.Printf("registration failed: %v", err)
//	}
//
// # Inbound challenges
//
// ParseMessage reads the claims of an inbound JWT without verifying it so the
// target mechanism can be located; VerifyMessage then checks the signature
// with that mechanism's secret:
//
//	msg, err := push.ParseMessage(messageID, token)
//	if err != nil {
//	    return err
//	}
//	mechanism := lookup(msg.MechanismUUID())
//	if err := push.VerifyMessage(msg.Token, mechanism.Secret); err != nil {
//	    return err
//	}
//	notification, err := model.NewNotification(msg.MessageID, msg.Payload())
//
// # Responding
//
//	err := client.Respond(ctx, mechanism, notification, true, "")
//
// Respond refuses notifications that are no longer pending. A failed or timed
// out call returns an error and the caller keeps the notification pending.
package push
