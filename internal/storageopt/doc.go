// Package storageopt 提供 xstore 各后端共用的辅助设施：
// 健康检查超时、操作计数器与慢操作检测。
package storageopt
