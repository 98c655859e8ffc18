package authenticator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jeremyhahn/go-authenticator/pkg/model"
	"github.com/jeremyhahn/go-authenticator/pkg/policy"
	"github.com/jeremyhahn/go-authenticator/pkg/push"
	"github.com/jeremyhahn/go-authenticator/pkg/storage/memory"
)

const (
	testSecret      = "5GuioYhLlh-xER3n5I8vrx0uuYQo3yD86aJi6KuWDsg"
	testChallenge   = "KP0XQfZ21N_jsXP_xfVQMmsmoUiWvdDPWecHdb5_INQ"
	testDeviceToken = "PJ6d7k8uM2AvK+T1jJTMBYD5so+SrHnvVLoGz2Mte3A="
	testRegisterID  = "REGISTER:a8970dea-3257-4be1-a37a-23eed2b692131588282723889"
)

var errInjected = errors.New("injected storage failure")

// faultyStore wraps the memory store and fails selected operations on demand.
type faultyStore struct {
	*memory.Store

	mu    sync.Mutex
	rules map[string]int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Store: memory.New(), rules: make(map[string]int)}
}

// failAfter lets the next n calls to op succeed and fails every call after
// them until heal is called.
func (s *faultyStore) failAfter(op string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[op] = n
}

func (s *faultyStore) heal(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rules, op)
}

func (s *faultyStore) check(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.rules[op]
	if !ok {
		return nil
	}
	if n > 0 {
		s.rules[op] = n - 1
		return nil
	}
	return fmt.Errorf("%s: %w", op, errInjected)
}

func (s *faultyStore) PutAccount(ctx context.Context, a *model.Account) error {
	if err := s.check("PutAccount"); err != nil {
		return err
	}
	return s.Store.PutAccount(ctx, a)
}

func (s *faultyStore) RemoveAccount(ctx context.Context, id string) error {
	if err := s.check("RemoveAccount"); err != nil {
		return err
	}
	return s.Store.RemoveAccount(ctx, id)
}

func (s *faultyStore) PutMechanism(ctx context.Context, m *model.Mechanism) error {
	if err := s.check("PutMechanism"); err != nil {
		return err
	}
	return s.Store.PutMechanism(ctx, m)
}

func (s *faultyStore) RemoveMechanism(ctx context.Context, uuid string) error {
	if err := s.check("RemoveMechanism"); err != nil {
		return err
	}
	return s.Store.RemoveMechanism(ctx, uuid)
}

func (s *faultyStore) PutNotification(ctx context.Context, n *model.Notification) error {
	if err := s.check("PutNotification"); err != nil {
		return err
	}
	return s.Store.PutNotification(ctx, n)
}

func (s *faultyStore) RemoveNotification(ctx context.Context, id string) error {
	if err := s.check("RemoveNotification"); err != nil {
		return err
	}
	return s.Store.RemoveNotification(ctx, id)
}

// testClock is a settable clock shared by the manager and the push client.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000010, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// pushServer is an identity server stand-in for registration and authentication calls.
type pushServer struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	requests []pushRequest
	release  chan struct{}
}

type pushRequest struct {
	path   string
	claims jwt.MapClaims
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()

	ps := &pushServer{status: http.StatusOK}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			JWT string `json:"jwt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		claims := jwt.MapClaims{}
		_, _, _ = jwt.NewParser().ParseUnverified(body.JWT, claims)

		ps.mu.Lock()
		ps.requests = append(ps.requests, pushRequest{path: r.URL.Path, claims: claims})
		status, release := ps.status, ps.release
		ps.mu.Unlock()

		if release != nil {
			<-release
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *pushServer) setStatus(status int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.status = status
}

// hold blocks every request until the returned function is called.
func (ps *pushServer) hold() func() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ch := make(chan struct{})
	ps.release = ch
	return func() {
		ps.mu.Lock()
		ps.release = nil
		ps.mu.Unlock()
		close(ch)
	}
}

func (ps *pushServer) calls() []pushRequest {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return append([]pushRequest(nil), ps.requests...)
}

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

// pushURI builds a pushauth:// enrollment URI pointing at the test server.
func (ps *pushServer) pushURI(issuer, accountName string) string {
	return fmt.Sprintf("pushauth://push/%s:%s?a=%s&b=519387&r=%s&s=%s&c=%s&l=YW1sYmNvb2tpZT0wMQ&m=%s&issuer=%s",
		issuer, accountName,
		b64(ps.URL+"/authenticate"), b64(ps.URL+"/register"),
		testSecret, testChallenge, testRegisterID, b64(issuer))
}

// combinedURI builds an mfauth:// enrollment URI pointing at the test server.
func (ps *pushServer) combinedURI(issuer, accountName, policies string) string {
	uri := fmt.Sprintf("mfauth://totp/%s:%s?a=%s&image=%s&b=ff00ff&r=%s&s=%s&c=%s&l=YW1sYmNvb2tpZT0wMQ==&m=%s&digits=6&secret=R2PYFZRISXA5L25NVSSYK2RQ6E======&period=30",
		issuer, accountName,
		b64(ps.URL+"/authenticate"), b64("http://seattlewriter.com/wp-content/uploads/2013/01/weight-watchers-small.gif"),
		b64(ps.URL+"/register"), testSecret, testChallenge, testRegisterID)
	if policies != "" {
		uri += "&policies=" + base64.StdEncoding.EncodeToString([]byte(policies))
	}
	return uri
}

type testEnv struct {
	manager *Manager
	store   *faultyStore
	clock   *testClock
	server  *pushServer
	logs    *observer.ObservedLogs
}

type envOption func(*Config)

func withPolicies(t *testing.T, policies ...policy.Policy) envOption {
	t.Helper()
	evaluator, err := policy.NewEvaluator(policies...)
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}
	return func(c *Config) { c.Policies = evaluator }
}

func rejectNonCompliant() envOption {
	return func(c *Config) { c.RejectNonCompliant = true }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{
		store:  newFaultyStore(),
		clock:  newTestClock(),
		server: newPushServer(t),
	}

	pushClient, err := push.NewClient(push.Config{
		HTTPClient: env.server.Client(),
		Timeout:    2 * time.Second,
		Clock:      env.clock.Now,
	})
	if err != nil {
		t.Fatalf("push.NewClient() error = %v", err)
	}

	core, logs := observer.New(zap.DebugLevel)
	env.logs = logs

	cfg := Config{
		Storage:     env.store,
		Push:        pushClient,
		Logger:      zap.New(core),
		Clock:       env.clock.Now,
		DeviceToken: testDeviceToken,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	env.manager, err = NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return env
}

func (env *testEnv) enroll(t *testing.T, uri string) *model.Mechanism {
	t.Helper()
	m, err := env.manager.CreateMechanismFromURI(context.Background(), uri)
	if err != nil {
		t.Fatalf("CreateMechanismFromURI(%s) error = %v", uri, err)
	}
	return m
}

// message signs an inbound push challenge for the mechanism.
func (env *testEnv) message(t *testing.T, mechanismUUID string, extra jwt.MapClaims) string {
	t.Helper()

	claims := jwt.MapClaims{
		model.PayloadChallenge:     "6ggPLysKJ6wSwBsQFtPclHQKebpOTMNwHP53kZxIGE4=",
		model.PayloadLoadBalancer:  "YW1sYmNvb2tpZT0wMQ==",
		model.PayloadTTL:           "120",
		model.PayloadMechanismUUID: mechanismUUID,
		model.PayloadTimeAdded:     env.clock.Now().UnixMilli(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	token, err := push.Sign(testSecret, claims)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	return token
}

func dummyPolicy(name string) policy.Policy {
	return policy.Named(name, func(params json.RawMessage) policy.Result {
		var p struct {
			Result *bool `json:"result"`
		}
		if err := json.Unmarshal(params, &p); err == nil && p.Result != nil {
			return policy.Result{Pass: *p.Result, Data: params}
		}
		return policy.Result{Pass: true}
	})
}
