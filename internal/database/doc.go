// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 database 提供基于 GORM 的数据库连接与连接池管理，
为 SQL 图存储和 Schema 迁移提供连接。

# 核心类型

  - Open / Dialector：按驱动名（postgres、mysql、sqlite）选择 GORM
    方言并打开连接，内存 SQLite 自动限制为单连接。
  - PoolManager：连接池管理器，提供 DB()、Ping()、GetStats()、Close()，
    后台定时探活并通过 StatsRecorder 上报连接数。
  - PoolConfig：连接池配置，包含最大空闲连接数、最大打开连接数、
    连接最大生命周期、空闲超时与健康检查间隔。
*/
package database
