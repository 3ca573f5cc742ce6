package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/bruteguard/internal/metrics"
	"github.com/BradenHooton/bruteguard/internal/models"
	pkgauth "github.com/BradenHooton/bruteguard/pkg/auth"
	pkglogger "github.com/BradenHooton/bruteguard/pkg/logger"
)

// LoginOutcome is the terminal state of one login request.
type LoginOutcome string

const (
	OutcomeAccepted           LoginOutcome = "accepted"
	OutcomeRejectedBlocked    LoginOutcome = "rejected_blocked"
	OutcomeRejectedNowBlocked LoginOutcome = "rejected_now_blocked"
	OutcomeRejectedInvalid    LoginOutcome = "rejected_invalid"
)

const unknownUser = "unknown"

// LoginResult carries what the handler needs to answer a login.
type LoginResult struct {
	Outcome   LoginOutcome
	Token     string
	User      *models.User
	Remaining int
}

// Delayer pads rejected logins. *auth.TimingDelay satisfies it.
type Delayer interface {
	WaitFrom(start time.Time, success bool)
}

// AuthGate is the request-time checkpoint in front of the credential
// check. The whole decision for one source runs under that source's lock,
// so concurrent failures count in order and escalate once.
type AuthGate struct {
	logs        LogRepository
	users       UserRepository
	tracker     *AttemptTracker
	engine      *BlockEngine
	locks       *SourceLocker
	geo         GeoLocator
	sessions    SessionIssuer
	delay       Delayer
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewAuthGate(
	ledger Ledger,
	tracker *AttemptTracker,
	engine *BlockEngine,
	locks *SourceLocker,
	geo GeoLocator,
	sessions SessionIssuer,
	delay Delayer,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	m *metrics.Metrics,
) *AuthGate {
	if geo == nil {
		geo = unknownGeo{}
	}
	if auditLogger == nil {
		auditLogger = pkglogger.NewAuditLogger(logger)
	}
	return &AuthGate{
		logs:        ledger.Logs,
		users:       ledger.Users,
		tracker:     tracker,
		engine:      engine,
		locks:       locks,
		geo:         geo,
		sessions:    sessions,
		delay:       delay,
		logger:      logger,
		auditLogger: auditLogger,
		metrics:     m,
		now:         time.Now,
	}
}

// Login runs one attempt from ip. Rejections are returned as outcomes, not
// errors; an error means the ledger or token signing failed.
func (g *AuthGate) Login(ctx context.Context, ip, username, password string) (*LoginResult, error) {
	start := time.Now()
	username = strings.TrimSpace(username)

	result, err := g.login(ctx, ip, username, password)
	if err != nil {
		g.observe("error")
		return nil, err
	}
	g.observe(string(result.Outcome))

	if result.Outcome == OutcomeRejectedInvalid && g.delay != nil {
		g.delay.WaitFrom(start, false)
	}
	return result, nil
}

func (g *AuthGate) login(ctx context.Context, ip, username, password string) (*LoginResult, error) {
	unlock := g.locks.Lock(ip)
	defer unlock()

	// The block check precedes any credential work.
	_, err := g.engine.BlockFor(ctx, ip)
	switch {
	case err == nil:
		g.rejectBlocked(ctx, ip, username)
		return &LoginResult{Outcome: OutcomeRejectedBlocked}, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("check block state: %w", err)
	}

	user, err := g.verify(ctx, username, password)
	if err != nil && !errors.Is(err, models.ErrInvalidCredentials) {
		return nil, err
	}
	if err == nil {
		return g.accept(ctx, ip, user)
	}

	actor := username
	if actor == "" {
		actor = unknownUser
	}
	counter, logErr := g.tracker.RecordFailure(ctx, ip, actor)
	if logErr != nil {
		g.logger.Error("failed to record login failure", slog.String("ip", ip), slog.Any("error", logErr))
	}
	g.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		Actor:         actor,
		IPAddress:     ip,
		FailureReason: "invalid_credentials",
	})

	limit := g.tracker.MaxFailedAttempts()
	if counter.Count >= limit {
		if _, _, err := g.engine.escalate(ctx, counter); err != nil {
			return nil, err
		}
		return &LoginResult{Outcome: OutcomeRejectedNowBlocked}, nil
	}

	return &LoginResult{Outcome: OutcomeRejectedInvalid, Remaining: limit - counter.Count}, nil
}

// verify checks the credential pair. Unknown users still pay for a bcrypt
// compare.
func (g *AuthGate) verify(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		pkgauth.CompareDummy(password)
		return nil, models.ErrInvalidCredentials
	}

	user, err := g.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkgauth.CompareDummy(password)
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

func (g *AuthGate) accept(ctx context.Context, ip string, user *models.User) (*LoginResult, error) {
	token, err := g.sessions.GenerateSessionToken(user.ID, user.Username)
	if err != nil {
		g.logger.Error("failed to generate session token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	g.tracker.RecordSuccess(ip)
	g.appendLog(ctx, &models.LogRecord{
		IP:       ip,
		User:     user.Username,
		Message:  "Successful login for " + user.Username,
		Severity: models.SeverityInfo,
	})
	g.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		Actor:     user.Username,
		IPAddress: ip,
		Success:   true,
	})

	return &LoginResult{Outcome: OutcomeAccepted, Token: token, User: user}, nil
}

func (g *AuthGate) rejectBlocked(ctx context.Context, ip, username string) {
	if username == "" {
		username = unknownUser
	}
	g.appendLog(ctx, &models.LogRecord{
		IP:       ip,
		User:     username,
		Message:  fmt.Sprintf("Blocked IP %s attempted login", ip),
		Severity: models.SeverityCritical,
	})
	g.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		Actor:         username,
		IPAddress:     ip,
		FailureReason: "source_blocked",
	})
}

// appendLog fills the common fields and writes entry. Failures are logged
// only; these records do not drive any decision.
func (g *AuthGate) appendLog(ctx context.Context, entry *models.LogRecord) {
	entry.ID = models.NewID()
	entry.Timestamp = g.now().UTC()
	entry.Country = g.geo.Lookup(entry.IP).Country
	if err := g.logs.Append(ctx, entry); err != nil {
		g.logger.Error("failed to append log record",
			slog.String("ip", entry.IP),
			slog.String("severity", string(entry.Severity)),
			slog.Any("error", err),
		)
	}
}

func (g *AuthGate) observe(outcome string) {
	if g.metrics != nil {
		g.metrics.LoginOutcomes.WithLabelValues(outcome).Inc()
	}
}
