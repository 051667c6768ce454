// Package snowflake 雪花 ID 生成器（客户端订单号）
package snowflake

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// 起始时间戳 (2024-01-01 00:00:00 UTC)
	epoch int64 = 1704067200000

	// 位数分配
	workerIDBits = 10 // 机器 ID 位数
	sequenceBits = 12 // 序列号位数

	// 最大值
	maxWorkerID = -1 ^ (-1 << workerIDBits) // 1023
	maxSequence = -1 ^ (-1 << sequenceBits) // 4095

	// 位移
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

var (
	ErrInvalidWorkerID = errors.New("worker ID must be between 0 and 1023")
	ErrClockMovedBack  = errors.New("clock moved backwards")
)

// Generator 雪花 ID 生成器
type Generator struct {
	mu       sync.Mutex
	workerID int64
	sequence int64
	lastTime int64
}

// New 创建生成器
func New(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, ErrInvalidWorkerID
	}
	return &Generator{
		workerID: workerID,
	}, nil
}

// Generate 生成 ID
func (g *Generator) Generate() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()

	if now < g.lastTime {
		return 0, ErrClockMovedBack
	}

	if now == g.lastTime {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// 序列号用尽，等待下一毫秒
			for now <= g.lastTime {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		g.sequence = 0
	}

	g.lastTime = now

	id := (now-epoch)<<timestampShift | g.workerID<<workerIDShift | g.sequence
	return id, nil
}

// GenerateOrderID 生成带前缀的客户端订单号
func (g *Generator) GenerateOrderID() (string, error) {
	id, err := g.Generate()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ord-%d", id), nil
}

var (
	defaultGen *Generator
	initOnce   sync.Once
)

// Init 初始化默认生成器
func Init(workerID int64) error {
	var err error
	initOnce.Do(func() {
		defaultGen, err = New(workerID)
	})
	return err
}

// NextOrderID 使用默认生成器生成客户端订单号
func NextOrderID() (string, error) {
	if defaultGen == nil {
		return "", errors.New("snowflake not initialized")
	}
	return defaultGen.GenerateOrderID()
}
