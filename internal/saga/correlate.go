package saga

import (
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/aggregate"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/commandbus"
	"github.com/ChenBigdata421/jxt-saga/sdk/pkg/domain/event"
)

// Caused 由上游事件派生命令元数据：沿用关联ID，因果ID为触发事件ID
func Caused(e event.Event) commandbus.Metadata {
	m := e.Meta()
	return commandbus.NewMetadata(m.CorrelationID, m.EventID)
}

// Correlate 命令产生的事件沿用命令的关联ID，因果ID为命令ID
func Correlate(agg aggregate.Aggregate, cmd commandbus.Command) {
	m := cmd.Meta()
	agg.AggregateRoot().Correlate(m.CorrelationID, m.CommandID)
}
