package intent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"

	"github.com/tourwallet/topup/internal/provider"
)

const (
	// TokenPrefix starts every bank-aggregator correlation token.
	TokenPrefix = "TW"
	// tokenBodyLen is the base36 width of a 53-bit id.
	tokenBodyLen = 11
	momoPrefix   = "MOMO"
)

var snowflakeLayout sync.Once

// OrderCodes generates order codes that stay below 2^53 so PayOS, which
// requires a JavaScript-safe integer, accepts them unchanged.
type OrderCodes struct {
	node *snowflake.Node
}

// NewOrderCodes builds a generator for the given node (0-15).
func NewOrderCodes(nodeID int64) (*OrderCodes, error) {
	snowflakeLayout.Do(func() {
		snowflake.NodeBits = 4
		snowflake.StepBits = 8
	})
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	return &OrderCodes{node: node}, nil
}

// Next returns a fresh order code shaped for the provider.
func (g *OrderCodes) Next(kind provider.Kind) string {
	id := g.node.Generate()
	switch kind {
	case provider.KindBankQR:
		return id.String()
	case provider.KindBankAggregator:
		body := strings.ToUpper(id.Base36())
		if len(body) < tokenBodyLen {
			body = strings.Repeat("0", tokenBodyLen-len(body)) + body
		}
		return TokenPrefix + body
	default:
		return momoPrefix + id.String()
	}
}

// ExtractTokens finds every candidate correlation token in a transfer
// description. Banks often strip separators, so tokens are searched at every
// offset rather than between word boundaries.
func ExtractTokens(description string) []string {
	s := strings.ToUpper(description)
	width := len(TokenPrefix) + tokenBodyLen
	seen := map[string]bool{}
	var out []string
	for i := 0; i+width <= len(s); i++ {
		if s[i:i+len(TokenPrefix)] != TokenPrefix {
			continue
		}
		candidate := s[i : i+width]
		if !alnum(candidate[len(TokenPrefix):]) || seen[candidate] {
			continue
		}
		seen[candidate] = true
		out = append(out, candidate)
	}
	return out
}

func alnum(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}
