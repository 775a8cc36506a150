package guard

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// RecipientMode selects whitelist (allow only matches) or blacklist (deny
// matches) semantics for RecipientGuard.
type RecipientMode string

const (
	ModeWhitelist RecipientMode = "whitelist"
	ModeBlacklist RecipientMode = "blacklist"
)

// RecipientConfig declares the match sets a RecipientGuard evaluates against.
type RecipientConfig struct {
	Name      string
	Mode      RecipientMode
	Addresses []string // exact match, case-insensitive
	Domains   []string // substring match against the recipient
	Patterns  []string // compiled regex, matched against the recipient
}

// RecipientGuard is a pure check against exact addresses, substrings, and
// regex patterns. Whitelist mode requires at least one match; blacklist
// mode requires none.
type RecipientGuard struct {
	cfg      RecipientConfig
	compiled []*regexp.Regexp
}

// NewRecipientGuard compiles cfg.Patterns once at construction so Check
// never pays regex-compile cost per call.
func NewRecipientGuard(cfg RecipientConfig) (*RecipientGuard, error) {
	compiled := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("guard: recipient guard %q: invalid pattern %q: %w", cfg.Name, p, err)
		}
		compiled = append(compiled, re)
	}
	return &RecipientGuard{cfg: cfg, compiled: compiled}, nil
}

func (g *RecipientGuard) Name() string { return g.cfg.Name }

func (g *RecipientGuard) matches(recipient string) bool {
	lower := strings.ToLower(recipient)

	for _, addr := range g.cfg.Addresses {
		if strings.ToLower(addr) == lower {
			return true
		}
	}
	for _, domain := range g.cfg.Domains {
		if strings.Contains(lower, strings.ToLower(domain)) {
			return true
		}
	}
	for _, re := range g.compiled {
		if re.MatchString(recipient) {
			return true
		}
	}
	return false
}

func (g *RecipientGuard) evaluate(gctx Context) Result {
	matched := g.matches(gctx.Recipient)

	switch g.cfg.Mode {
	case ModeWhitelist:
		if !matched {
			return Result{Allowed: false, Reason: fmt.Sprintf("recipient guard %q: recipient not in whitelist", g.cfg.Name)}
		}
	case ModeBlacklist:
		if matched {
			return Result{Allowed: false, Reason: fmt.Sprintf("recipient guard %q: recipient is blacklisted", g.cfg.Name)}
		}
	}
	return Result{Allowed: true}
}

func (g *RecipientGuard) Check(_ context.Context, gctx Context) (Result, error) {
	return g.evaluate(gctx), nil
}

func (g *RecipientGuard) Reserve(_ context.Context, gctx Context) (string, error) {
	result := g.evaluate(gctx)
	if !result.Allowed {
		return "", fmt.Errorf("%w: %s", errGuardRejected(g.cfg.Name), result.Reason)
	}
	tok := Token{Version: 1, Guard: g.cfg.Name, WalletID: gctx.WalletID}
	return tok.Encode()
}

func (g *RecipientGuard) Commit(_ context.Context, token string) error {
	_, err := DecodeToken(token)
	return err
}

func (g *RecipientGuard) Release(_ context.Context, token string) error {
	_, err := DecodeToken(token)
	return err
}
