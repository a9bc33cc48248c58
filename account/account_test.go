package account

import (
	"testing"
	"time"

	"github.com/worldforge-go/atlasclient/op"
	"github.com/worldforge-go/atlasclient/router"
	"github.com/worldforge-go/atlasclient/timer"
)

type recordingSender struct {
	sent []*op.Op
}

func (s *recordingSender) Send(o *op.Op) { s.sent = append(s.sent, o) }

func newTestAccount(now time.Time) (*Account, *recordingSender, *router.Router, *timer.Scheduler) {
	r := router.New(nil, 16)
	sched := timer.New(func() time.Time { return now })
	sender := &recordingSender{}
	a := New(nil, r, sender, sched)
	return a, sender, r, sched
}

func TestLoginSuccess(t *testing.T) {
	a, sender, r, _ := newTestAccount(time.Unix(0, 0))

	if err := a.Login("ajr", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if a.Status() != StatusLoggingIn {
		t.Fatalf("expected status logging-in, got %s", a.Status())
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one LOGIN op sent, got %d", len(sender.sent))
	}

	serial, ok := sender.sent[0].Serial()
	if !ok {
		t.Fatalf("LOGIN op should carry a serial")
	}

	var success bool
	a.LoginSuccess.Subscribe(func(struct{}) { success = true })

	reply := op.New("info").SetRefno(serial).
		SetArgs([]op.Op{*op.New("account").SetID("acc1").SetParents([]string{"account"})})
	if r.Route(reply) != router.Handled {
		t.Fatalf("login reply should be routed via refno correlation")
	}

	if !success || !a.IsLoggedIn() {
		t.Fatalf("expected login success, status=%s", a.Status())
	}
	if a.AccountID != "acc1" {
		t.Fatalf("expected AccountID acc1, got %q", a.AccountID)
	}
}

func TestLoginFailureFromServerError(t *testing.T) {
	a, sender, r, _ := newTestAccount(time.Unix(0, 0))
	a.Login("ajr", "wrong")
	serial, _ := sender.sent[0].Serial()

	var msg string
	a.LoginFailure.Subscribe(func(m string) { msg = m })

	errReply := op.New("error").SetRefno(serial).
		SetArgs([]op.Op{*op.New("error").SetAttr("message", op.StringElement("bad password"))})
	r.Route(errReply)

	if msg != "bad password" {
		t.Fatalf("expected server error message relayed, got %q", msg)
	}
	if a.Status() != StatusDisconnected {
		t.Fatalf("expected disconnected status after login failure, got %s", a.Status())
	}
}

// TestLoginTimeout reproduces scenario 6.
func TestLoginTimeout(t *testing.T) {
	start := time.Unix(0, 0)
	a, sender, r, sched := newTestAccount(start)
	a.Login("ajr", "secret")
	serial, _ := sender.sent[0].Serial()

	var failures []string
	a.LoginFailure.Subscribe(func(msg string) { failures = append(failures, msg) })

	sched.Poll(start.Add(10 * time.Second))
	if len(failures) != 0 {
		t.Fatalf("should not time out before the deadline, got %v", failures)
	}

	sched.Poll(start.Add(LoginTimeout + time.Second))
	if len(failures) != 1 || failures[0] != "timed out" {
		t.Fatalf("expected exactly one LoginFailure(\"timed out\"), got %v", failures)
	}
	if a.Status() != StatusDisconnected {
		t.Fatalf("expected disconnected status after timeout, got %s", a.Status())
	}
	if r.PendingCount() != 0 {
		t.Fatalf("pending-request table should no longer contain the refno")
	}

	// A late reply for the same serial must produce no further signal.
	lateReply := op.New("info").SetRefno(serial).
		SetArgs([]op.Op{*op.New("account").SetID("acc1")})
	result := r.Route(lateReply)
	if result == router.Handled {
		t.Fatalf("a late reply after timeout should not be refno-correlated any more")
	}
	if len(failures) != 1 {
		t.Fatalf("late arrival should not fire any further signal, got %v", failures)
	}
}

func TestLogoutCompleteOnReply(t *testing.T) {
	a, sender, r, _ := newTestAccount(time.Unix(0, 0))
	a.Login("ajr", "secret")
	serial, _ := sender.sent[0].Serial()
	r.Route(op.New("info").SetRefno(serial).SetArgs([]op.Op{*op.New("account").SetID("acc1")}))

	if err := a.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	logoutSerial, _ := sender.sent[len(sender.sent)-1].Serial()

	var clean []bool
	a.LogoutComplete.Subscribe(func(ok bool) { clean = append(clean, ok) })

	r.Route(op.New("info").SetRefno(logoutSerial))

	if len(clean) != 1 || !clean[0] {
		t.Fatalf("expected a single clean LogoutComplete(true), got %v", clean)
	}
	if a.Status() != StatusDisconnected {
		t.Fatalf("expected disconnected after logout, got %s", a.Status())
	}
}

func TestLogoutRejectedWhenNotLoggedIn(t *testing.T) {
	a, _, _, _ := newTestAccount(time.Unix(0, 0))
	if err := a.Logout(); err == nil {
		t.Fatalf("expected an error logging out while disconnected")
	}
}

func TestTakeCharacterPossessSuccess(t *testing.T) {
	a, sender, r, _ := newTestAccount(time.Unix(0, 0))
	a.Login("ajr", "secret")
	loginSerial, _ := sender.sent[0].Serial()
	r.Route(op.New("info").SetRefno(loginSerial).SetArgs([]op.Op{*op.New("account").SetID("acc1")}))

	if err := a.TakeCharacter("char1"); err != nil {
		t.Fatalf("TakeCharacter: %v", err)
	}
	if a.Status() != StatusTakingCharacter {
		t.Fatalf("expected taking-character status, got %s", a.Status())
	}
	lookSerial, _ := sender.sent[len(sender.sent)-1].Serial()

	var possessed string
	a.AvatarPossessed.Subscribe(func(id string) { possessed = id })

	r.Route(op.New("info").SetRefno(lookSerial).SetArgs([]op.Op{*op.New("info").SetID("char1")}))

	if possessed != "char1" {
		t.Fatalf("expected AvatarPossessed(char1), got %q", possessed)
	}
	if a.Status() != StatusLoggedIn {
		t.Fatalf("expected status back to logged-in after possess, got %s", a.Status())
	}
}

func TestRefreshCharacterInfo(t *testing.T) {
	a, sender, r, _ := newTestAccount(time.Unix(0, 0))
	a.Login("ajr", "secret")
	loginSerial, _ := sender.sent[0].Serial()
	r.Route(op.New("info").SetRefno(loginSerial).SetArgs([]op.Op{*op.New("account").SetID("acc1")}))

	if err := a.RefreshCharacterInfo(); err != nil {
		t.Fatalf("RefreshCharacterInfo: %v", err)
	}
	lookSerial, _ := sender.sent[len(sender.sent)-1].Serial()

	var got *Character
	var allDone bool
	a.GotCharacterInfo.Subscribe(func(c *Character) { got = c })
	a.GotAllCharacters.Subscribe(func(struct{}) { allDone = true })

	r.Route(op.New("info").SetRefno(lookSerial).SetArgs([]op.Op{*op.New("info").SetID("char1")}))

	if got == nil || got.ID != "char1" {
		t.Fatalf("expected GotCharacterInfo(char1), got %v", got)
	}
	if !allDone {
		t.Fatalf("expected GotAllCharacters to fire")
	}
	if a.Characters()["char1"] != got {
		t.Fatalf("character map should hold the same instance")
	}
}

func TestAccountRouterHandlesUnsolicitedLogout(t *testing.T) {
	a, sender, r, _ := newTestAccount(time.Unix(0, 0))
	a.Login("ajr", "secret")
	loginSerial, _ := sender.sent[0].Serial()
	r.Route(op.New("info").SetRefno(loginSerial).SetArgs([]op.Op{*op.New("account").SetID("acc1")}))

	r.Use("account", a.RouterFunc())

	var clean []bool
	a.LogoutComplete.Subscribe(func(ok bool) { clean = append(clean, ok) })

	forcedLogout := op.New("logout").SetTo("acc1")
	if result := r.Route(forcedLogout); result != router.Handled {
		t.Fatalf("account router should handle a server-initiated logout addressed to the account")
	}
	if len(clean) != 1 || !clean[0] {
		t.Fatalf("expected LogoutComplete(true), got %v", clean)
	}
}
