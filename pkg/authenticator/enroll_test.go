package authenticator

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jeremyhahn/go-authenticator/pkg/model"
	"github.com/jeremyhahn/go-authenticator/pkg/push"
)

// TestCreateMechanismFromURIOATH tests enrolling HOTP and TOTP mechanisms.
func TestCreateMechanismFromURIOATH(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	m := env.enroll(t, "otpauth://totp/ForgeRock:demo?secret=T7SIIEPTZJQQDSCB&issuer=ForgeRock&digits=6&period=30")
	if m.Type != model.TypeTOTP || m.Identifier() != "ForgeRock-demo-totp" {
		t.Errorf("mechanism = %s %s", m.Type, m.Identifier())
	}

	account, err := env.manager.GetAccount(ctx, "ForgeRock-demo")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if len(account.Mechanisms) != 1 || account.Mechanisms[0].UUID != m.UUID {
		t.Errorf("Mechanisms = %v", account.Mechanisms)
	}
	if account.Lock {
		t.Errorf("account locked without policies")
	}

	if got := env.logs.FilterMessage("mechanism enrolled").Len(); got != 1 {
		t.Errorf("logged %d enrollments, want 1", got)
	}
	if len(env.server.calls()) != 0 {
		t.Errorf("OATH enrollment contacted the server")
	}
}

// TestCreateMechanismFromURIDuplicate tests that an enrolled identifier cannot be enrolled again.
func TestCreateMechanismFromURIDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uri := "otpauth://hotp/Forgerock:demo?secret=IJQWIZ3FOIQUEYLE&algorithm=sha256"
	env.enroll(t, uri)

	_, err := env.manager.CreateMechanismFromURI(ctx, uri)
	var exists *AlreadyExistsError
	if !errors.As(err, &exists) {
		t.Fatalf("error = %v, want *AlreadyExistsError", err)
	}
	if exists.Identifier != "Forgerock-demo-hotp" {
		t.Errorf("Identifier = %s", exists.Identifier)
	}

	mechanisms, _ := env.store.GetAllMechanisms(ctx)
	if len(mechanisms) != 1 {
		t.Errorf("store holds %d mechanisms, want 1", len(mechanisms))
	}

	// A different type under the same account is not a duplicate.
	env.enroll(t, "otpauth://totp/Forgerock:demo?secret=IJQWIZ3FOIQUEYLE")
	account, err := env.manager.GetAccount(ctx, "Forgerock-demo")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if len(account.Mechanisms) != 2 || account.Mechanisms[0].Type != model.TypeHOTP || account.Mechanisms[1].Type != model.TypeTOTP {
		t.Errorf("Mechanisms out of enrollment order")
	}

	if _, err := env.manager.CreateMechanismFromURI(ctx, "otpauth://totp/Forgerock:demo?secret=IJQWIZ3FOIQUEYLE"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("TOTP re-enrollment error = %v, want ErrAlreadyExists", err)
	}
}

// TestCreateMechanismFromURIConcurrentDuplicates tests that only one of several concurrent identical enrollments succeeds.
func TestCreateMechanismFromURIConcurrentDuplicates(t *testing.T) {
	env := newTestEnv(t)
	uri := "otpauth://totp/ForgeRock:race?secret=T7SIIEPTZJQQDSCB"

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.manager.CreateMechanismFromURI(context.Background(), uri)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, ErrAlreadyExists):
			t.Errorf("unexpected error = %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d enrollments succeeded, want 1", succeeded)
	}
}

// TestCreateMechanismFromURIMergesDisplay tests that a second enrollment updates the account display fields.
func TestCreateMechanismFromURIMergesDisplay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.enroll(t, "otpauth://totp/ForgeRock:demo?secret=T7SIIEPTZJQQDSCB&b=032b75")
	env.enroll(t, "otpauth://hotp/ForgeRock:demo?secret=T7SIIEPTZJQQDSCB&b=ff00ff&image=aHR0cDovL2V4YW1wbGUuY29tL2xvZ28ucG5n")

	account, err := env.manager.GetAccount(ctx, "ForgeRock-demo")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if account.BackgroundColor != "ff00ff" || account.ImageURL != "http://example.com/logo.png" {
		t.Errorf("display = %q %q", account.BackgroundColor, account.ImageURL)
	}
	if len(account.Mechanisms) != 2 {
		t.Errorf("Mechanisms = %d, want 2", len(account.Mechanisms))
	}
}

// TestCreateMechanismFromURIAtomic tests that a failed write leaves no enrollment records behind.
func TestCreateMechanismFromURIAtomic(t *testing.T) {
	tests := []struct {
		name string
		op   string
		skip int
	}{
		{name: "mechanism write fails", op: "PutMechanism"},
		{name: "account write fails", op: "PutAccount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			env.store.failAfter(tt.op, tt.skip)

			_, err := env.manager.CreateMechanismFromURI(ctx, "otpauth://totp/ForgeRock:demo?secret=T7SIIEPTZJQQDSCB")
			if !errors.Is(err, ErrStorage) || !errors.Is(err, errInjected) {
				t.Fatalf("error = %v, want storage error", err)
			}
			var se *StorageError
			if !errors.As(err, &se) || se.Op != "put" {
				t.Errorf("StorageError = %+v", se)
			}

			accounts, _ := env.store.GetAllAccounts(ctx)
			mechanisms, _ := env.store.GetAllMechanisms(ctx)
			if len(accounts) != 0 || len(mechanisms) != 0 {
				t.Errorf("partial enrollment left %d accounts and %d mechanisms", len(accounts), len(mechanisms))
			}

			// Nothing stays reserved after a failed attempt.
			env.store.heal(tt.op)
			env.enroll(t, "otpauth://totp/ForgeRock:demo?secret=T7SIIEPTZJQQDSCB")
		})
	}
}

// TestCreateMechanismFromURIPush tests push enrollment and its registration call.
func TestCreateMechanismFromURIPush(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	m := env.enroll(t, env.server.pushURI("ForgeRockSandbox", "pushreg3"))
	if m.Type != model.TypePush {
		t.Fatalf("Type = %s", m.Type)
	}

	calls := env.server.calls()
	if len(calls) != 1 || calls[0].path != "/register" {
		t.Fatalf("server calls = %+v, want one registration", calls)
	}
	claims := calls[0].claims
	if claims[push.ClaimDeviceID] != testDeviceToken || claims[push.ClaimMechanismUID] != m.UUID {
		t.Errorf("registration claims = %v", claims)
	}

	account, err := env.manager.GetAccount(ctx, "ForgeRockSandbox-pushreg3")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if len(account.Mechanisms) != 1 {
		t.Errorf("Mechanisms = %d, want 1", len(account.Mechanisms))
	}
}

// TestCreateMechanismFromURIPushRegistrationFails tests that nothing is stored when registration is refused.
func TestCreateMechanismFromURIPushRegistrationFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.server.setStatus(http.StatusUnauthorized)

	_, err := env.manager.CreateMechanismFromURI(ctx, env.server.pushURI("ForgeRockSandbox", "pushreg3"))
	if !errors.Is(err, push.ErrRegistrationFailed) {
		t.Fatalf("error = %v, want ErrRegistrationFailed", err)
	}

	accounts, _ := env.store.GetAllAccounts(ctx)
	if len(accounts) != 0 {
		t.Errorf("failed registration stored %d accounts", len(accounts))
	}
}

// TestCreateMechanismFromURIPushWithoutDeviceToken tests that push enrollment requires a device token.
func TestCreateMechanismFromURIPushWithoutDeviceToken(t *testing.T) {
	env := newTestEnv(t)
	env.manager.SetDeviceToken("")

	_, err := env.manager.CreateMechanismFromURI(context.Background(), env.server.pushURI("ForgeRockSandbox", "pushreg3"))
	if !errors.Is(err, push.ErrMissingDeviceToken) {
		t.Errorf("error = %v, want ErrMissingDeviceToken", err)
	}
	if len(env.server.calls()) != 0 {
		t.Errorf("request sent without a device token")
	}
}

// TestCreateMechanismFromURICombined tests that a combined URI enrolls both mechanisms under one account.
func TestCreateMechanismFromURICombined(t *testing.T) {
	env := newTestEnv(t, withPolicies(t, dummyPolicy("dummy")))
	ctx := context.Background()

	m := env.enroll(t, env.server.combinedURI("forgerock", "pushreg3", `{"dummy": { }}`))
	if m.Type != model.TypeTOTP {
		t.Errorf("returned %s, want the OATH mechanism", m.Type)
	}

	account, err := env.manager.GetAccount(ctx, "forgerock-pushreg3")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if len(account.Mechanisms) != 2 {
		t.Fatalf("Mechanisms = %d, want 2", len(account.Mechanisms))
	}
	if account.Mechanisms[0].Type != model.TypePush || account.Mechanisms[1].Type != model.TypeTOTP {
		t.Errorf("order = %s, %s", account.Mechanisms[0].Type, account.Mechanisms[1].Type)
	}
	if account.Lock || !account.HasPolicy("dummy") {
		t.Errorf("account = lock %v policies %v", account.Lock, account.Policies)
	}

	all, _ := env.manager.GetAllAccounts(ctx)
	if len(all) != 1 {
		t.Errorf("GetAllAccounts() = %d, want 1", len(all))
	}
}

// TestCreateMechanismFromURICombinedAfterPush tests that a combined URI is refused when its push mechanism exists.
func TestCreateMechanismFromURICombinedAfterPush(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.enroll(t, env.server.pushURI("ForgeRockSandbox", "pushtestuser"))

	_, err := env.manager.CreateMechanismFromURI(ctx, env.server.combinedURI("ForgeRockSandbox", "pushtestuser", ""))
	var exists *AlreadyExistsError
	if !errors.As(err, &exists) || exists.Identifier != "ForgeRockSandbox-pushtestuser-push" {
		t.Fatalf("error = %v, want already exists for the push mechanism", err)
	}

	account, err := env.manager.GetAccount(ctx, "ForgeRockSandbox-pushtestuser")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if len(account.Mechanisms) != 1 {
		t.Errorf("Mechanisms = %d, want 1", len(account.Mechanisms))
	}
	if n := len(env.server.calls()); n != 1 {
		t.Errorf("server saw %d registrations, want 1", n)
	}
}

// TestCreateMechanismFromURIPolicyLock tests that a non-compliant account is locked or refused on enrollment.
func TestCreateMechanismFromURIPolicyLock(t *testing.T) {
	policies := `{"dummy": { }, "dummyWithData": { "result" : false }}`

	t.Run("locks new account", func(t *testing.T) {
		env := newTestEnv(t, withPolicies(t, dummyPolicy("dummy"), dummyPolicy("dummyWithData")))
		ctx := context.Background()

		env.enroll(t, env.server.combinedURI("Forgerock", "demo", policies))

		account, err := env.manager.GetAccount(ctx, "Forgerock-demo")
		if err != nil {
			t.Fatalf("GetAccount() error = %v", err)
		}
		if !account.Lock || account.LockingPolicy == nil || account.LockingPolicy.Name != "dummyWithData" {
			t.Errorf("lock = %v %+v, want locked by dummyWithData", account.Lock, account.LockingPolicy)
		}
		if env.logs.FilterMessage("account locked on enrollment").Len() != 1 {
			t.Errorf("lock not logged")
		}
	})

	t.Run("rejects when configured", func(t *testing.T) {
		env := newTestEnv(t, withPolicies(t, dummyPolicy("dummy"), dummyPolicy("dummyWithData")), rejectNonCompliant())
		ctx := context.Background()

		_, err := env.manager.CreateMechanismFromURI(ctx, env.server.combinedURI("Forgerock", "demo", policies))
		var violation *PolicyViolationError
		if !errors.As(err, &violation) || violation.Lock.Name != "dummyWithData" {
			t.Fatalf("error = %v, want policy violation", err)
		}
		if len(env.server.calls()) != 0 {
			t.Errorf("refused enrollment still registered with the server")
		}
		accounts, _ := env.store.GetAllAccounts(ctx)
		if len(accounts) != 0 {
			t.Errorf("refused enrollment stored an account")
		}
	})

	t.Run("unregistered policy fails", func(t *testing.T) {
		env := newTestEnv(t, withPolicies(t, dummyPolicy("dummy")))
		ctx := context.Background()

		env.enroll(t, env.server.combinedURI("Forgerock", "demo", policies))

		account, err := env.manager.GetAccount(ctx, "Forgerock-demo")
		if err != nil {
			t.Fatalf("GetAccount() error = %v", err)
		}
		if !account.Lock || account.LockingPolicy.Name != "dummyWithData" {
			t.Errorf("lock = %v %+v", account.Lock, account.LockingPolicy)
		}
	})
}

// TestCreateMechanismFromURIAsync tests the asynchronous enrollment result.
func TestCreateMechanismFromURIAsync(t *testing.T) {
	env := newTestEnv(t)

	res := <-env.manager.CreateMechanismFromURIAsync(context.Background(), "otpauth://totp/ForgeRock:demo?secret=T7SIIEPTZJQQDSCB")
	if res.Err != nil || res.Value == nil {
		t.Fatalf("result = %+v", res)
	}

	res = <-env.manager.CreateMechanismFromURIAsync(context.Background(), "otpauth://totp/ForgeRock:demo?secret=T7SIIEPTZJQQDSCB")
	if !errors.Is(res.Err, ErrAlreadyExists) {
		t.Errorf("second result error = %v", res.Err)
	}
}

// TestCreateMechanismFromURIStampsOnWrite tests that an enrollment finishing
// after another is listed after it, whichever started first.
func TestCreateMechanismFromURIStampsOnWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	release := env.server.hold()
	first := env.manager.CreateMechanismFromURIAsync(ctx, env.server.pushURI("ForgeRockSandbox", "pushreg3"))

	deadline := time.Now().Add(2 * time.Second)
	for len(env.server.calls()) == 0 {
		if time.Now().After(deadline) {
			release()
			t.Fatal("registration never reached the server")
		}
		time.Sleep(5 * time.Millisecond)
	}

	env.clock.Advance(time.Second)
	totp := env.enroll(t, "otpauth://totp/ForgeRock:demo?secret=T7SIIEPTZJQQDSCB")
	env.clock.Advance(time.Second)
	release()

	res := <-first
	if res.Err != nil {
		t.Fatalf("CreateMechanismFromURIAsync() error = %v", res.Err)
	}
	if !res.Value.TimeAdded.After(totp.TimeAdded) {
		t.Errorf("push TimeAdded %v not after %v", res.Value.TimeAdded, totp.TimeAdded)
	}

	all, err := env.store.GetAllMechanisms(ctx)
	if err != nil {
		t.Fatalf("GetAllMechanisms() error = %v", err)
	}
	if len(all) != 2 || all[0].UUID != totp.UUID || all[1].UUID != res.Value.UUID {
		t.Errorf("mechanisms not listed in write order")
	}

	accounts, err := env.manager.GetAllAccounts(ctx)
	if err != nil {
		t.Fatalf("GetAllAccounts() error = %v", err)
	}
	if len(accounts) != 2 || accounts[0].Identifier() != "ForgeRock-demo" {
		t.Errorf("accounts not listed in write order")
	}
}
