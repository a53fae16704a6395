// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 FlowStudio 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、api、cmd
等上层模块提供统一的错误码与上下文约定，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、NodeID、Details

# 主要能力

  - Context 传播：WithTraceID / WithRequestID / WithUserID / WithExecutionID / WithWorkflowID
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode / HTTPStatusFor
  - 常用错误构造：NewNotFoundError / NewInvalidOperationError / NewInvalidRequestError / NewInternalError
*/
package types
