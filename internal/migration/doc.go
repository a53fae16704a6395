// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 migration 管理工作流存储的数据库 Schema 版本，支持 PostgreSQL、
MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在二进制中，迁移器复用
internal/database 打开的连接，使用 golang-migrate 的 WithInstance
驱动与 iofs 源执行版本化变更。workflows 表结构与 GORM 存储后端的
记录模型保持一致。

# 核心类型

  - Migrator：Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info/Close。
  - DefaultMigrator：基于 golang-migrate 的实现，关闭时一并关闭连接。
  - CLI：flowstudio migrate 子命令的终端输出，状态表使用 lipgloss 渲染。
  - NewMigratorFromConfig：按 config.DatabaseConfig 打开连接并创建迁移器。
*/
package migration
