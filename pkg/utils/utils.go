package utils

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Retry 尝试执行 fn，如果失败则重试，最多 retries 次
// delay 是两次重试之间的间隔，backoff=true 表示指数退避，ctx 结束时立即返回
func Retry(ctx context.Context, retries int, delay time.Duration, backoff bool, fn func() error) error {
	if retries < 1 {
		retries = 1
	}
	var err error
	for i := 0; i < retries; i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if i < retries-1 { // 最后一次就不用 sleep 了
			sleep := delay
			if backoff {
				sleep = delay * time.Duration(1<<i) // 1x,2x,4x,8x...
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry canceled after %d attempts: %w", i+1, err)
			case <-time.After(sleep):
			}
		}
	}
	return fmt.Errorf("after %d attempts, last error: %w", retries, err)
}

// QuoteAssets 常见计价币，用于拆分 BTCUSDT 这类无分隔符的币对
// 长的在前，USDT/USDC/BUSD 需要先于 USD 匹配
var QuoteAssets = []string{"USDT", "USDC", "BUSD", "USD", "BTC", "ETH", "EUR"}

// SplitSymbol "BTC/USDT"、"btc-usdt"、"BTCUSDT"、"BTC-USDT-SWAP" -> BTC, USDT
func SplitSymbol(symbol string) (base, quote string, ok bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, sep := range []string{"/", "-", "_"} {
		if parts := strings.Split(s, sep); len(parts) >= 2 {
			if parts[0] == "" || parts[1] == "" {
				return "", "", false
			}
			return parts[0], parts[1], true
		}
	}
	for _, q := range QuoteAssets {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return strings.TrimSuffix(s, q), q, true
		}
	}
	return "", "", false
}

// FormatSymbol 将 TradingView ticker (BTCUSDT) 或 OKX instId (BTC-USDT) 转换为 BASE/QUOTE
func FormatSymbol(tvSymbol string) string {
	if base, quote, ok := SplitSymbol(tvSymbol); ok {
		return base + "/" + quote
	}
	// 没匹配到就返回原始值
	return strings.ToUpper(strings.TrimSpace(tvSymbol))
}
