// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package store 提供工作流定义的持久化存储抽象及多后端实现。

# 核心接口

GraphStore 按 ID 保存、读取、列出和删除工作流定义。存储不做结构校验，
只负责原样往返；定义以 JSON 编码保存，节点配置通过自身的编解码器还原。
列表按更新时间倒序返回摘要（Summary），更新时间相同时按 ID 升序。

# 后端实现

  - Memory: 内存实现，适合开发与测试
  - Redis: 文档 + 摘要 Hash + 更新时间 Sorted Set，写入走 MULTI 事务
  - SQL: 基于 GORM 的 workflows 表，支持 postgres / mysql / sqlite
  - Mongo: 每个定义一个文档，按 updatedAt 建立索引

通过 New 按配置创建实例：

	s, err := store.New(ctx, cfg, store.Backends{Redis: client}, logger)
*/
package store
