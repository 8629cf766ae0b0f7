// Package xrecord 把字段映射形式的记录保存到存储，并为新记录分配主键。
//
// 每个集合对应一个成员集合（名称即集合名）和若干记录键 "<集合名>:<id>"。
// 首次保存无 ID 的记录时通过 xalloc 分配 ID；预设 ID 的记录首次保存时
// 用 AddUnique 认领，已被占用返回 [ErrDuplicateID]。之后的保存不再检查。
//
// 写入通过 ReplaceFields 整体替换字段，读方不会看到清空与重写之间的中间状态。
// 主键同时以 "id" 字段存入字段映射。
package xrecord
