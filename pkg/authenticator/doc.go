// Package authenticator is the entry point of the authenticator engine. A
// Manager enrolls mechanisms from QR code URIs, serves accounts with their
// mechanisms and notifications, generates OATH codes, answers push
// challenges and applies account policies.
//
// Basic usage:
//
//	store := memory.New()
//	manager, err := authenticator.NewManager(authenticator.Config{
//	    Storage: store,
//	    Logger:  logger,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	mech, err := manager.CreateMechanismFromURI(ctx,
//	    "otpauth://totp/ForgeRock:demo?secret=T7SIIEPTZJQQDSCB&digits=6&period=30")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	code, err := manager.GenerateCode(ctx, mech)
//
// Push mechanisms register with the server during enrollment, so the
// platform device token must be set first:
//
//	manager.SetDeviceToken(token)
//	mech, err := manager.CreateMechanismFromURI(ctx, "pushauth://push/...")
//
// Inbound push messages become pending notifications, which are answered
// with Accept, Deny or AcceptWithChallenge:
//
//	n, err := manager.HandleMessage(ctx, messageID, jwt)
//	if err != nil {
//	    return err
//	}
//	err = manager.Accept(ctx, n)
//
// Every error is typed. Branch with errors.Is against the Err values of this
// package, and errors.As for the parameterised errors such as
// *InvalidInformationError or *AlreadyExistsError.
package authenticator
