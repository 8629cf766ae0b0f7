package xrecord

import (
	"maps"
	"strconv"
)

// PrimaryKeyField 主键在字段映射中的字段名。
const PrimaryKeyField = "id"

// Record 一条记录，不可在多个 goroutine 间共享写。
type Record struct {
	// Fields 业务字段，保存时整体写入；PrimaryKeyField 由集合维护。
	Fields map[string]string

	id    int64
	hasID bool
	isNew bool
}

// ID 返回主键，尚未分配时 ok 为 false。
func (r *Record) ID() (id int64, ok bool) {
	return r.id, r.hasID
}

// IsNew 报告记录是否尚未保存。
func (r *Record) IsNew() bool {
	return r.isNew
}

// Get 返回字段值，不存在时返回空字符串。
func (r *Record) Get(field string) string {
	return r.Fields[field]
}

// Set 设置字段值。
func (r *Record) Set(field, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	r.Fields[field] = value
}

// payload 返回带主键字段的写入内容。
func (r *Record) payload() map[string]string {
	out := make(map[string]string, len(r.Fields)+1)
	maps.Copy(out, r.Fields)
	out[PrimaryKeyField] = strconv.FormatInt(r.id, 10)
	return out
}

func loaded(id int64, fields map[string]string) *Record {
	delete(fields, PrimaryKeyField)
	return &Record{Fields: fields, id: id, hasID: true}
}
