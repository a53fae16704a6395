// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 server 管理 FlowStudio 的 HTTP/HTTPS 服务器生命周期。

# 核心类型

  - Manager：封装 net/http.Server，提供非阻塞 Start、优雅 Shutdown
    与异步错误通道。Config.TLS 非空时监听器包装为 TLS。
  - Group：API 与指标服务器的组合，Run 基于 errgroup 阻塞到 ctx
    结束或任一服务器异常退出，随后统一关闭。
  - APIConfig / MetricsConfig：从 config.ServerConfig 构建服务器配置，
    证书通过 internal/tlsutil 加载。
*/
package server
