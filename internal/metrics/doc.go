// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、
执行生命周期、编辑器操作、图存储与数据库连接。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，所有指标按 namespace 隔离。Collector 实现
execution.Recorder，可直接注入执行协调器。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 执行指标：创建与终态计数、执行耗时、活跃执行数、
    节点运行计数与耗时、Token/API 调用/成本累计、订阅回调 panic 计数。
  - 编辑器指标：校验结果、分析复杂度等级、事件流订阅数。
  - 存储指标：图存储各操作耗时与失败计数。
  - 数据库指标：打开/空闲连接数。
*/
package metrics
