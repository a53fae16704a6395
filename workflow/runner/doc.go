// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package runner 提供 execution.Runner 的两种实现。

# LocalRunner

在进程内按图执行工作流：

  - 从唯一的 start 节点出发，多入边节点等待所有入边确定后再运行（AND 汇合），
    没有任何入边触发时跳过该节点并继续向下传播
  - conditional 节点按 true/false 句柄分支，带 condition 的边单独求值，
    都未命中时走 default 句柄
  - loop 节点按 body 边执行循环体，iteration 在循环体内外可见，
    并受 maxIterations 与 MaxLoopIterations 双重限制
  - 节点失败时若通过 error 边连接了 errorHandler，按其配置重试，
    仍失败则把错误信息交给处理节点，否则整个运行以 NODE_FAILED 失败
  - model / tool / memory / retrieval 节点受 MaxParallel 并发限制

模型、工具、记忆与检索通过 ModelInvoker、ToolRegistry、MemoryBackend、
Retriever 注入；令牌统计使用 tiktoken，无法加载编码时退化为估算。

# RemoteRunner

把运行分发到远端执行服务：HTTP 提交运行，websocket 接收事件流，
上下文取消时发送取消请求并等待服务端确认。提交过程由熔断器保护，
熔断打开时返回可重试的 SERVICE_UNAVAILABLE。
*/
package runner
