package json

import (
	jsoniter "github.com/json-iterator/go"
)

// JSON 统一的 jsoniter 配置实例
// 事件文档、快照、包络、追踪消息都通过它序列化，保证与标准库行为一致
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

// RawMessage 与标准库 json.RawMessage 兼容
type RawMessage = jsoniter.RawMessage

// Marshal 序列化对象为 JSON 字节数组
func Marshal(v interface{}) ([]byte, error) {
	return JSON.Marshal(v)
}

// Unmarshal 从 JSON 字节数组反序列化对象
func Unmarshal(data []byte, v interface{}) error {
	return JSON.Unmarshal(data, v)
}

// MarshalToString 将对象序列化为 JSON 字符串
func MarshalToString(v interface{}) (string, error) {
	return JSON.MarshalToString(v)
}

// GetString 读取顶层字符串字段，不做完整反序列化
// 字段不存在或类型不符时返回空串
//
// 消费者用它读取 eventType 判别字段：
//
//	if jxtjson.GetString(msg, "eventType") != "OrderCreated" {
//	    return nil
//	}
func GetString(data []byte, field string) string {
	any := JSON.Get(data, field)
	if any.LastError() != nil || any.ValueType() != jsoniter.StringValue {
		return ""
	}
	return any.ToString()
}

// GetInt64 读取顶层整数字段，不存在时返回 0
func GetInt64(data []byte, field string) int64 {
	any := JSON.Get(data, field)
	if any.LastError() != nil || any.ValueType() != jsoniter.NumberValue {
		return 0
	}
	return any.ToInt64()
}
