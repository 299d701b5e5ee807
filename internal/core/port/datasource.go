// Package port file: internal/core/port/datasource.go
package port

import (
	"GeoAegis/internal/core/domain"
	"context"
)

// DataSource 接口定义。每种后端（关系库、文档库、搜索索引）各有一个实现，
// 字段翻译与查询组装由各实现调用共享的 query/tsquery 包完成。
type DataSource interface {
	// Find 执行一次查询并返回规范化的结果
	Find(ctx context.Context, req domain.Request) (*domain.Result, error)

	// Catalog 返回该数据源的后端字段目录
	Catalog() *domain.Catalog

	// HealthCheck 检查数据源的健康状况
	HealthCheck(ctx context.Context) error

	// Type 返回适配器的类型标识符
	Type() string

	// Close 释放连接池、客户端等资源
	Close() error
}
