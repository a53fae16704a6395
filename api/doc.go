// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package api 定义 FlowStudio HTTP API 的请求与响应类型。

# 概述

请求类型携带 go-playground/validator 标签，由 handlers 包在解码后统一校验。
所有 JSON 字段使用 camelCase，与工作流定义及执行事件的线上格式一致。

# 端点

  - /api/v1/workflows          — 工作流定义的存储、校验与分析
  - /api/v1/executions         — 执行的启动、停止、重试、淘汰与事件流（websocket）
  - /api/v1/sessions           — 编辑会话：提交编辑、撤销、重做、复制与粘贴

# 认证

启用 jwt 配置后，/api/v1 下的端点要求 Authorization: Bearer <token>。
*/
package api
