package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ChenBigdata421/jxt-saga/sdk/config"
)

// Charge 网关扣款请求
type Charge struct {
	OrderID    string
	CustomerID string
	Amount     int64
	Currency   string
	Method     string
}

// Decision 网关结论；Approved 为 false 时 Reason 说明拒付原因
type Decision struct {
	Approved bool
	Reason   string
}

// Gateway 支付网关
//
// 返回 error 表示网关不可用，此时不记录任何支付事件；拒付通过 Decision 表达。
type Gateway interface {
	Authorize(ctx context.Context, c Charge) (Decision, error)
}

// SimulatedGateway 按金额上限与随机拒付率给出结论
type SimulatedGateway struct {
	cfg config.GatewayConfig

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimulatedGateway(cfg config.GatewayConfig) *SimulatedGateway {
	return &SimulatedGateway{cfg: cfg, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// WithSeed 固定随机源
func (g *SimulatedGateway) WithSeed(seed int64) *SimulatedGateway {
	g.mu.Lock()
	g.rnd = rand.New(rand.NewSource(seed))
	g.mu.Unlock()
	return g
}

func (g *SimulatedGateway) Authorize(ctx context.Context, c Charge) (Decision, error) {
	if g.cfg.Latency > 0 {
		t := time.NewTimer(g.cfg.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		case <-t.C:
		}
	}

	if g.cfg.MaxAmount > 0 && c.Amount > g.cfg.MaxAmount {
		return Decision{Reason: fmt.Sprintf("amount %d exceeds gateway limit %d", c.Amount, g.cfg.MaxAmount)}, nil
	}
	if g.cfg.FailureRate > 0 {
		g.mu.Lock()
		roll := g.rnd.Float64()
		g.mu.Unlock()
		if roll < g.cfg.FailureRate {
			return Decision{Reason: "payment declined by gateway"}, nil
		}
	}
	return Decision{Approved: true}, nil
}
