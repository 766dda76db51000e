// Package contracts 三个限界上下文之间共享的事件契约
//
// 服务之间只通过这些事件通信：生产者写入自己的事件主题，
// 消费者用对应的注册表按 eventType 解码，未知类型直接忽略。
// 金额以最小货币单位（分）表示。
package contracts

import "github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"

// 聚合类型
const (
	AggregateOrder     = "Order"
	AggregatePayment   = "Payment"
	AggregateInventory = "Inventory"
)

// 默认主题
const (
	TopicOrders    = "orders-events"
	TopicPayments  = "payments-events"
	TopicInventory = "domain-events"
	TopicSnapshots = "aggregate-snapshots"
	TopicTraces    = "trace-events"
)

// All 三个上下文的全部事件类型
func All() *event.Registry {
	r := event.NewRegistry()
	registerOrder(r)
	registerPayment(r)
	registerInventory(r)
	return r
}
