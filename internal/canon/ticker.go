package canon

import (
	"fmt"
	"strings"
)

// ValidTicker reports whether s is a 1-10 character alphabetic symbol,
// optionally split into BASE/QUOTE with each side 1-10 alphabetic
// characters (e.g. "BTC/USDT").
func ValidTicker(s string) bool {
	if base, quote, ok := strings.Cut(s, "/"); ok {
		return isAlphaLen(base, 1, 10) && isAlphaLen(quote, 1, 10)
	}
	return isAlphaLen(s, 1, 10)
}

func isAlphaLen(s string, min, max int) bool {
	if len(s) < min || len(s) > max {
		return false
	}
	for _, r := range s {
		if !((r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}

// ValidateTickerConfig checks the invariants spec.md §3 requires of a
// TickerConfig before it is accepted by a builder.
func ValidateTickerConfig(cfg TickerConfig) error {
	if cfg.Ticker == nil || !ValidTicker(*cfg.Ticker) {
		return fmt.Errorf("canon: %w: invalid ticker symbol %q", ErrBuilder, DerefOrEmpty(cfg.Ticker))
	}
	if !isPowerOfTen(cfg.PriceMultiplier) {
		return fmt.Errorf("canon: %w: price_multiplier must be a power of ten, got %d", ErrBuilder, cfg.PriceMultiplier)
	}
	if !isPowerOfTen(cfg.QuantityMultiplier) {
		return fmt.Errorf("canon: %w: quantity_multiplier must be a power of ten, got %d", ErrBuilder, cfg.QuantityMultiplier)
	}
	if cfg.SubscribeDepth && cfg.DepthValue <= 0 {
		return fmt.Errorf("canon: %w: depth_value must be > 0 when subscribe_depth is set", ErrBuilder)
	}
	return nil
}

func isPowerOfTen(n uint64) bool {
	if n == 0 {
		return false
	}
	for n%10 == 0 {
		n /= 10
	}
	return n == 1
}

// DerefOrEmpty returns *s, or "" if s is nil.
func DerefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
