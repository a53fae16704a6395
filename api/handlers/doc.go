// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 FlowStudio HTTP API 的请求处理器实现。

# 概述

handlers 包实现工作流存储、校验、分析、执行控制与编辑会话的全部端点。
每个 Handler 通过 Routes 方法挂载到 chi 路由，统一使用 JSON 信封响应，
请求体经 validator/v10 按结构体标签校验。

# 核心类型

  - WorkflowHandler  — 工作流定义的增删查、校验与分析（支持报告缓存）
  - ExecutionHandler — 执行的启动、停止、重试、淘汰与 websocket 事件流
  - SessionHandler   — 服务端编辑会话：编辑、撤销/重做、复制/粘贴、保存
  - HealthHandler    — 存活、就绪与版本端点
  - PingCheck        — 以 ping 函数实现的可插拔就绪检查
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp + requestId）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteStatus / WriteError / WriteErr
  - 请求解码：DecodeJSONBody（4 MB 限制 + 严格模式 + 结构体校验）、
    DecodeDefinition（按 Content-Type 解析 JSON 或 YAML）
  - 错误码 → HTTP 状态码映射由 types.HTTPStatusFor 完成
  - 事件流：第一帧为执行快照，执行结束后正常关闭；慢订阅者按策略断开
*/
package handlers
