// Package model defines the records managed by the authenticator: accounts,
// the mechanisms enrolled under them, inbound push notifications and the
// one-time codes derived from OATH mechanisms.
//
// A Mechanism is a tagged union. The shared fields (UUID, issuer, account
// name, secret) live on the record itself and exactly one of the HOTP, TOTP
// or Push variants is set, matching Type:
//
//	m, err := model.NewTOTPMechanism("ForgeRock", "demo", "JBSWY3DPEHPK3PXP",
//	    model.TOTP{Algorithm: model.AlgorithmSHA1, Digits: 6, Period: 30}, time.Now())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(m.Identifier()) // ForgeRock-demo-totp
//
// Records can be serialized with JSONCodec or ArchiveCodec. Neither codec
// encodes the relation fields Account.Mechanisms and Mechanism.Notifications;
// those are filled in by the authenticator on retrieval.
package model
