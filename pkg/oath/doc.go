// Package oath generates HOTP (RFC 4226) and TOTP (RFC 6238) codes for
// enrolled mechanisms.
//
// Generation is a pure function of the mechanism and the supplied time. HOTP
// codes are derived from the mechanism's current counter; advancing and
// persisting the counter is left to the caller so that a failed write can be
// retried and reproduce the same code.
//
// # TOTP Example
//
//	m, _ := model.NewTOTPMechanism("ForgeRock", "demo", "JBSWY3DPEHPK3PXP",
//	    model.TOTP{Algorithm: model.AlgorithmSHA1, Digits: 6, Period: 30}, time.Now())
//
//	code, err := oath.Generate(m, time.Now())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%s (valid until %s)\n", code.Value, code.Until)
//
// # HOTP Example
//
//	m, _ := model.NewHOTPMechanism("ForgeRock", "demo", "IJQWIZ3FOIQUEYLE",
//	    model.HOTP{Algorithm: model.AlgorithmSHA256, Digits: 6}, time.Now())
//
//	code, _ := oath.Generate(m, time.Now()) // 185731
//	m.HOTP.Counter++
//
// # Algorithms
//
// SHA1, SHA256, SHA512 and MD5 are computed with github.com/pquerna/otp.
// SHA224 and SHA384 use the same dynamic truncation over crypto/hmac.
// Codes are 6 or 8 digits.
package oath
