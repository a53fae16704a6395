// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package config 提供 FlowStudio 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（FLOWSTUDIO_ 前缀）的顺序加载，
// 覆盖服务器、日志、遥测、存储后端、编辑历史、执行协调器与运行器、
// 静态分析以及 JWT 认证等部分。Watcher 轮询配置文件并在变更后
// 重新加载，供服务进程热更新日志级别等可在线调整的设置。
package config
