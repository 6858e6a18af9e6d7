package xtransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Renderer 把一批日志条目编码为投递载荷。
// 真正的渲染引擎（模板、着色、主题）是外部协作者，
// 引擎本身只依赖这个窄接口。
type Renderer interface {
	// Format 编码一批条目
	Format(batch []Entry) ([]byte, error)

	// ContentType 载荷的 MIME 类型
	ContentType() string
}

// HeaderProvider 可选扩展：渲染器为 HTTP 投递附加额外请求头。
type HeaderProvider interface {
	ExtraHeaders() map[string]string
}

// ErrorSerializer 把任意错误编码为结构化记录，
// 用于 DeliveryError 载荷与 worker 边界传输。
type ErrorSerializer interface {
	Serialize(err error) []byte
}

// ---- NDJSON ----

// wireEntry Entry 的 JSON 线格式。
type wireEntry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"msg"`
	Meta    Fields    `json:"meta,omitempty"`
	Error   string    `json:"error,omitempty"`
}

func toWire(e Entry) wireEntry {
	w := wireEntry{
		Time:    e.Time,
		Level:   e.Level,
		Message: e.Message,
		Meta:    e.Meta,
	}
	if e.Err != nil {
		w.Error = e.Err.Error()
	}
	return w
}

// NDJSONRenderer 每条目一行 JSON 的渲染器，文件与 HTTP sink 的默认值。
type NDJSONRenderer struct{}

var _ Renderer = (*NDJSONRenderer)(nil)

// Format 实现 Renderer。
func (NDJSONRenderer) Format(batch []Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range batch {
		if err := enc.Encode(toWire(e)); err != nil {
			return nil, fmt.Errorf("xtransport: encode entry: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// ContentType 实现 Renderer。
func (NDJSONRenderer) ContentType() string {
	return "application/x-ndjson"
}

// ---- 文本 ----

// TextRenderer 人类可读的单行文本渲染器，控制台 sink 的默认值。
type TextRenderer struct{}

var _ Renderer = (*TextRenderer)(nil)

// Format 实现 Renderer。
func (TextRenderer) Format(batch []Entry) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range batch {
		buf.WriteString(e.Time.UTC().Format(time.RFC3339Nano))
		buf.WriteByte(' ')
		buf.WriteString(e.Level.String())
		buf.WriteByte(' ')
		buf.WriteString(e.Message)

		// 字段按键排序，输出可复现
		keys := make([]string, 0, len(e.Meta))
		for k := range e.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, " %s=%v", k, e.Meta[k])
		}
		if e.Err != nil {
			fmt.Fprintf(&buf, " error=%q", e.Err.Error())
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// ContentType 实现 Renderer。
func (TextRenderer) ContentType() string {
	return "text/plain; charset=utf-8"
}

// ---- 错误序列化 ----

// jsonErrorSerializer 默认的错误序列化：{"message":..., "kind":...}。
type jsonErrorSerializer struct{}

var _ ErrorSerializer = (*jsonErrorSerializer)(nil)

func (jsonErrorSerializer) Serialize(err error) []byte {
	if err == nil {
		return nil
	}
	record := struct {
		Message string `json:"message"`
		Kind    string `json:"kind"`
	}{
		Message: err.Error(),
		Kind:    fmt.Sprintf("%T", err),
	}
	data, merr := json.Marshal(record)
	if merr != nil {
		return []byte(fmt.Sprintf("%q", err.Error()))
	}
	return data
}
