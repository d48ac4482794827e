package reconcile

import (
	"strings"
	"time"

	"github.com/tourwallet/topup/internal/intent"
	"github.com/tourwallet/topup/internal/provider"
)

// MatcherConfig bounds which bank transactions can belong to an intent.
type MatcherConfig struct {
	// Epsilon is the largest accepted |amount - requested| in minor units.
	Epsilon int64 `envconfig:"MATCHER_EPSILON" default:"1"`
	// Window is how long after intent creation a transfer may land.
	Window time.Duration `envconfig:"MATCHER_WINDOW" default:"24h"`
	// Skew tolerates bank clocks running behind ours.
	Skew time.Duration `envconfig:"MATCHER_SKEW" default:"5m"`
}

// DefaultMatcherConfig returns the production defaults.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{Epsilon: 1, Window: 24 * time.Hour, Skew: 5 * time.Minute}
}

// CassoMatcher correlates free-text bank transfers with aggregator intents.
type CassoMatcher struct {
	cfg MatcherConfig
}

// NewCassoMatcher builds a matcher.
func NewCassoMatcher(cfg MatcherConfig) *CassoMatcher {
	if cfg.Window <= 0 {
		cfg.Window = DefaultMatcherConfig().Window
	}
	if cfg.Epsilon < 0 {
		cfg.Epsilon = 0
	}
	return &CassoMatcher{cfg: cfg}
}

// Match returns every distinct incoming transaction whose description carries
// the intent's token, whose amount is within epsilon of the requested amount
// and which was posted inside [createdAt - skew, createdAt + window]. The
// caller credits only when exactly one is returned.
func (m *CassoMatcher) Match(in intent.Intent, txs []provider.BankTransaction) []provider.BankTransaction {
	token := strings.ToUpper(in.OrderCode)
	from := in.CreatedAt.Add(-m.cfg.Skew)
	to := in.CreatedAt.Add(m.cfg.Window)

	seen := map[string]bool{}
	var out []provider.BankTransaction
	for _, tx := range txs {
		if tx.Amount <= 0 {
			continue
		}
		if !strings.Contains(strings.ToUpper(tx.Description), token) {
			continue
		}
		if diff := tx.Amount - in.Amount; diff > m.cfg.Epsilon || -diff > m.cfg.Epsilon {
			continue
		}
		if !tx.PostedAt.IsZero() && (tx.PostedAt.Before(from) || tx.PostedAt.After(to)) {
			continue
		}
		if tx.Ref != "" {
			if seen[tx.Ref] {
				continue
			}
			seen[tx.Ref] = true
		}
		out = append(out, tx)
	}
	return out
}
