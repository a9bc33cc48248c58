// Package account implements the login/character/possession state machine
// described as an external collaborator in spec.md §6, reference-built
// here on top of the core router/type/view/timer/bus components the way
// the original source's Eris::Account sits on top of its own Connection,
// TypeService, and View.
package account

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/worldforge-go/atlasclient/bus"
	"github.com/worldforge-go/atlasclient/op"
	"github.com/worldforge-go/atlasclient/router"
	"github.com/worldforge-go/atlasclient/timer"
)

// LoginTimeout is the default silence window before a LOGIN or LOGOUT
// request fails with "timed out" (spec.md §5, §8 scenario 6).
const LoginTimeout = 15 * time.Second

// Status mirrors Eris::Account::Status: what the account is currently
// doing. A login or logout failure or timeout resets it to
// StatusDisconnected; a failed take/create-character returns it to
// StatusLoggedIn.
type Status int

const (
	StatusDisconnected Status = iota
	StatusLoggingIn
	StatusLoggedIn
	StatusLoggingOut
	StatusTakingCharacter
	StatusCreatingCharacter
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusLoggingIn:
		return "logging-in"
	case StatusLoggedIn:
		return "logged-in"
	case StatusLoggingOut:
		return "logging-out"
	case StatusTakingCharacter:
		return "taking-character"
	case StatusCreatingCharacter:
		return "creating-character"
	default:
		return "unknown"
	}
}

// SpawnPoint is a place from which a new character may be created,
// reported by the server's character-refresh reply.
type SpawnPoint struct {
	Name string
	ID   string
}

// Character is the decoded entity description of one of the account's
// game characters, as returned by refreshCharacterInfo.
type Character struct {
	ID    string
	Attrs map[string]op.Element
}

// Sender abstracts issuing an operation onto the wire.
type Sender interface {
	Send(o *op.Op)
}

// Account encapsulates all the state of a server account and the
// operations that act on it (login, logout, character listing, character
// creation/possession). It is not safe for concurrent use.
type Account struct {
	logger    *slog.Logger
	router    *router.Router
	sender    Sender
	scheduler *timer.Scheduler

	status Status

	AccountID string
	Username  string
	Parent    string

	characters            map[string]*Character
	doingCharacterRefresh bool
	spawnPoints           []SpawnPoint

	loginTimeout time.Duration

	loginHandle  timer.Handle
	logoutHandle timer.Handle

	// GotCharacterInfo fires once per character as refreshCharacterInfo's
	// reply arrives.
	GotCharacterInfo *bus.Bus[*Character]
	// GotAllCharacters fires once the entire character list has updated.
	GotAllCharacters *bus.Bus[struct{}]
	// LoginFailure fires with the server's (or a canned "timed out")
	// error message.
	LoginFailure *bus.Bus[string]
	// LoginSuccess fires once login or account creation completes.
	LoginSuccess *bus.Bus[struct{}]
	// LogoutComplete fires with true for a clean server-acknowledged
	// logout, false for a timeout.
	LogoutComplete *bus.Bus[bool]
	// AvatarPossessed fires with the possessed entity id once a
	// take/create-character sequence completes.
	AvatarPossessed *bus.Bus[string]
	// AvatarFailure fires when creating or taking a character fails.
	AvatarFailure *bus.Bus[string]
	// ErrorMessage fires for any other server-reported error addressed
	// to this account.
	ErrorMessage *bus.Bus[string]
}

// New constructs a disconnected Account. r supplies serial allocation and
// the pending-request table; sender issues operations; scheduler powers
// the login/logout timeout.
func New(logger *slog.Logger, r *router.Router, sender Sender, scheduler *timer.Scheduler) *Account {
	if logger == nil {
		logger = slog.Default()
	}
	return &Account{
		logger:       logger,
		router:       r,
		sender:       sender,
		scheduler:    scheduler,
		status:       StatusDisconnected,
		characters:   make(map[string]*Character),
		loginTimeout: LoginTimeout,

		GotCharacterInfo: bus.New[*Character](),
		GotAllCharacters: bus.New[struct{}](),
		LoginFailure:     bus.New[string](),
		LoginSuccess:     bus.New[struct{}](),
		LogoutComplete:   bus.New[bool](),
		AvatarPossessed:  bus.New[string](),
		AvatarFailure:    bus.New[string](),
		ErrorMessage:     bus.New[string](),
	}
}

// SetLoginTimeout overrides the default 15 second login/logout timeout.
// Must be called before Login/Logout to take effect.
func (a *Account) SetLoginTimeout(d time.Duration) {
	a.loginTimeout = d
}

// Status reports the account's current state-machine position.
func (a *Account) Status() Status { return a.status }

// IsLoggedIn reports whether the account is fully logged into a
// server-side account.
func (a *Account) IsLoggedIn() bool { return a.status == StatusLoggedIn }

// Characters returns the account's cached character map. Callers should
// call RefreshCharacterInfo and wait for GotAllCharacters before relying
// on completeness.
func (a *Account) Characters() map[string]*Character { return a.characters }

// SpawnPoints returns the spawn points most recently reported by the
// server.
func (a *Account) SpawnPoints() []SpawnPoint { return a.spawnPoints }

// Login sends a LOGIN operation for uname/pwd and arms the login timeout.
// LoginFailure or LoginSuccess fires asynchronously as the reply or
// timeout arrives.
func (a *Account) Login(uname, pwd string) error {
	if a.status != StatusDisconnected {
		return fmt.Errorf("account: cannot login from state %s", a.status)
	}
	a.Username = uname
	return a.sendLogin(op.New("login").
		SetArgs([]op.Op{*op.New("account").SetAttr("username", op.StringElement(uname)).SetAttr("password", op.StringElement(pwd))}))
}

// CreateAccount sends a CREATE operation wrapping an account descriptor,
// requesting a brand new server-side account.
func (a *Account) CreateAccount(uname, fullName, pwd string) error {
	if a.status != StatusDisconnected {
		return fmt.Errorf("account: cannot create account from state %s", a.status)
	}
	a.Username = uname
	accountDesc := op.New("account").
		SetAttr("username", op.StringElement(uname)).
		SetAttr("name", op.StringElement(fullName)).
		SetAttr("password", op.StringElement(pwd))
	return a.sendLogin(op.New("create").SetArgs([]op.Op{*accountDesc}))
}

func (a *Account) sendLogin(loginOp *op.Op) error {
	serial := a.router.NextSerial()
	loginOp.SetSerial(serial)
	a.status = StatusLoggingIn
	a.router.AddPending(serial, router.PendingLogin, a.loginResponse, a.loginError)
	if a.scheduler != nil {
		a.loginHandle = a.scheduler.After(a.loginTimeout, func() { a.handleLoginTimeout(serial) })
	}
	a.sender.Send(loginOp)
	return nil
}

// Logout requests a clean disconnection from the server. Calling this
// while not logged in is an error.
func (a *Account) Logout() error {
	if a.status != StatusLoggedIn {
		return fmt.Errorf("account: cannot logout from state %s", a.status)
	}
	serial := a.router.NextSerial()
	logoutOp := op.New("logout").SetSerial(serial).SetFrom(a.AccountID)
	a.status = StatusLoggingOut
	a.router.AddPending(serial, router.PendingLogout, a.logoutResponse, a.logoutResponse)
	if a.scheduler != nil {
		a.logoutHandle = a.scheduler.After(a.loginTimeout, func() { a.handleLogoutTimeout(serial) })
	}
	a.sender.Send(logoutOp)
	return nil
}

// RefreshCharacterInfo requests the account's up to date character list.
// GotCharacterInfo fires once per character, then GotAllCharacters once
// the reply is fully processed.
func (a *Account) RefreshCharacterInfo() error {
	if !a.IsLoggedIn() {
		return fmt.Errorf("account: cannot refresh characters while %s", a.status)
	}
	a.doingCharacterRefresh = true
	serial := a.router.NextSerial()
	lookOp := op.New("look").SetSerial(serial).SetFrom(a.AccountID).SetTo(a.AccountID)
	a.router.AddPending(serial, router.PendingLook, a.characterInfoResponse, nil)
	a.sender.Send(lookOp)
	return nil
}

// TakeCharacter enters the game using an existing character owned by the
// account, sending a LOOK for it and awaiting the INFO reply that
// supplies the initial entity description.
func (a *Account) TakeCharacter(id string) error {
	if !a.IsLoggedIn() {
		return fmt.Errorf("account: cannot take character while %s", a.status)
	}
	a.status = StatusTakingCharacter
	serial := a.router.NextSerial()
	lookOp := op.New("look").SetSerial(serial).SetFrom(a.AccountID).SetTo(id)
	a.router.AddPending(serial, router.PendingLook, a.possessResponse, a.avatarError)
	a.sender.Send(lookOp)
	return nil
}

// CreateCharacter enters the game using a newly created character built
// from character (a decoded entity descriptor for the CREATE argument).
func (a *Account) CreateCharacter(character *op.Op) error {
	if !a.IsLoggedIn() {
		return fmt.Errorf("account: cannot create character while %s", a.status)
	}
	a.status = StatusCreatingCharacter
	serial := a.router.NextSerial()
	createOp := op.New("create").SetSerial(serial).SetFrom(a.AccountID).SetTo(a.AccountID).SetArgs([]op.Op{*character})
	a.router.AddPending(serial, router.PendingCreate, a.avatarCreateResponse, a.avatarError)
	a.sender.Send(createOp)
	return nil
}

func (a *Account) loginResponse(reply *op.Op) {
	if a.scheduler != nil {
		a.scheduler.Cancel(a.loginHandle)
	}
	desc, ok := reply.FirstArg()
	if !ok {
		a.LoginFailure.Emit("malformed login reply")
		a.status = StatusDisconnected
		return
	}
	a.AccountID = desc.ID()
	a.Parent = desc.TypeName()
	a.status = StatusLoggedIn
	a.LoginSuccess.Emit(struct{}{})
}

func (a *Account) loginError(reply *op.Op) {
	if a.scheduler != nil {
		a.scheduler.Cancel(a.loginHandle)
	}
	a.status = StatusDisconnected
	a.LoginFailure.Emit(errorMessage(reply))
}

func (a *Account) handleLoginTimeout(serial int64) {
	if _, stillPending := a.router.CancelPending(serial); !stillPending {
		return
	}
	a.status = StatusDisconnected
	a.LoginFailure.Emit("timed out")
}

func (a *Account) logoutResponse(reply *op.Op) {
	if a.scheduler != nil {
		a.scheduler.Cancel(a.logoutHandle)
	}
	a.status = StatusDisconnected
	a.LogoutComplete.Emit(reply.Class() != "error")
}

func (a *Account) handleLogoutTimeout(serial int64) {
	if _, stillPending := a.router.CancelPending(serial); !stillPending {
		return
	}
	a.status = StatusDisconnected
	a.LogoutComplete.Emit(false)
}

func (a *Account) characterInfoResponse(reply *op.Op) {
	args := reply.Args()
	for i := range args {
		c := &Character{ID: args[i].ID(), Attrs: args[i].Attrs()}
		a.characters[c.ID] = c
		a.GotCharacterInfo.Emit(c)
	}
	a.doingCharacterRefresh = false
	a.GotAllCharacters.Emit(struct{}{})
}

func (a *Account) possessResponse(reply *op.Op) {
	arg, ok := reply.FirstArg()
	if !ok {
		a.status = StatusLoggedIn
		a.AvatarFailure.Emit("malformed possess reply")
		return
	}
	a.status = StatusLoggedIn
	a.AvatarPossessed.Emit(arg.ID())
}

func (a *Account) avatarCreateResponse(reply *op.Op) {
	arg, ok := reply.FirstArg()
	if !ok {
		a.status = StatusLoggedIn
		a.AvatarFailure.Emit("malformed create reply")
		return
	}
	a.status = StatusLoggedIn
	a.AvatarPossessed.Emit(arg.ID())
}

func (a *Account) avatarError(reply *op.Op) {
	a.status = StatusLoggedIn
	a.AvatarFailure.Emit(errorMessage(reply))
}

func errorMessage(reply *op.Op) string {
	if arg, ok := reply.FirstArg(); ok {
		if msg, ok := arg.Attr("message"); ok {
			if s, ok := msg.AsString(); ok {
				return s
			}
		}
	}
	return "unknown error"
}

// RouterFunc builds the account router (§4.5 priority 2): server-initiated
// account operations not covered by refno correlation — an unsolicited
// logout notice, an error addressed to the account, or a sight-of a
// character addressed to the account itself used for character-list
// refresh.
func (a *Account) RouterFunc() router.Func {
	return func(o *op.Op) (router.Result, string) {
		if a.AccountID == "" || o.To() != a.AccountID {
			return router.Ignored, ""
		}
		switch o.Class() {
		case "logout":
			a.status = StatusDisconnected
			a.LogoutComplete.Emit(true)
			return router.Handled, ""
		case "error":
			a.ErrorMessage.Emit(errorMessage(o))
			return router.Handled, ""
		case "sight":
			arg, ok := o.FirstArg()
			if !ok || arg.ID() == "" {
				return router.Ignored, ""
			}
			c := &Character{ID: arg.ID(), Attrs: arg.Attrs()}
			a.characters[c.ID] = c
			a.GotCharacterInfo.Emit(c)
			return router.Handled, ""
		default:
			return router.Ignored, ""
		}
	}
}
