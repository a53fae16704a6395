// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 FlowStudio 服务端与命令行入口。

# 概述

cmd/flowstudio 是工作流服务的可执行入口，提供 HTTP API 服务、
工作流文件的校验/分析/试运行、数据库迁移、健康检查和版本查询等子命令。
程序支持 YAML 配置文件加载、结构化日志（zap）、Prometheus 与
OpenTelemetry 指标以及日志级别热更新。

# 核心类型

  - Server       — 主服务器，管理后端连接、执行协调器、API 与 Metrics 双端口及优雅关闭
  - Middleware   — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - statusWriter — 包装 http.ResponseWriter 以捕获状态码，支持 Hijack 穿透
  - HTTPRecorder — HTTP 请求指标记录接口

# 主要能力

  - 子命令：serve、validate、analyze、run、migrate、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、RequestLogger、
    Metrics（chi 路由模板作为标签）、CORS、RateLimiter（基于 IP）、JWTAuth
  - 存储后端：memory / redis / sql（gorm + 连接池）/ mongo，按配置选择
  - 运行器：本地运行器（试运行替身）或远端运行器（熔断保护）
  - 配置热更新：轮询监听配置文件，变更后调整日志级别
  - 终端报告：lipgloss 表格渲染校验结果、分析报告与执行明细
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
