// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 cache 提供基于 Redis 的缓存能力。

# 核心类型

  - NewRedisClient：按 config.RedisConfig 创建客户端，可选 TLS，
    Redis 图存储与缓存共用同一客户端。
  - Manager：带键前缀与默认 TTL 的字符串/JSON 缓存，不拥有客户端。
  - ReportCache：以工作流定义内容的 SHA-256 摘要为键缓存分析报告，
    供 analyze 接口复用未变更定义的结果。
  - ErrCacheMiss / IsCacheMiss：缓存未命中语义。
*/
package cache
