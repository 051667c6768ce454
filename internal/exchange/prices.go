package exchange

import "sync"

// PriceCache 最新标记价格缓存（决策消息写入，模拟连接器读取）
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewPriceCache 创建缓存
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]float64)}
}

// Set 更新标记价格
func (p *PriceCache) Set(symbol string, price float64) {
	if price <= 0 {
		return
	}
	p.mu.Lock()
	p.prices[symbol] = price
	p.mu.Unlock()
}

// Get 读取标记价格，未知 symbol 返回 0
func (p *PriceCache) Get(symbol string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prices[symbol]
}
