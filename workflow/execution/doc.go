// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package execution 协调工作流执行的生命周期。

Coordinator 在 Start 时先做校验，校验失败返回 VALIDATION_FAILED 且不创建执行；
通过后立即返回执行 ID，实际运行交给 Runner 在后台完成。

# 状态机

	queued → running → completed | failed | cancelled

终态不可逆：进入终态后所有 OnProgress / OnComplete / OnFail / OnCancel
都是空操作，订阅者对每个执行只会收到一个终态事件，且它是最后一个事件。

# 进度

进度按 completed / total 计算，只增不减。倒退的上报被忽略，
同时写入一条 warn 级别的执行日志。

# 停止

没有节点在运行时 Stop 立即取消；否则取消运行上下文，
等最后一个运行中的节点确认（NodeFinished）或 Runner 返回后再进入 cancelled。
对终态执行调用 Stop 返回 INVALID_OPERATION。

# 订阅

同一执行的事件按状态变化顺序投递，处理函数在独立的 goroutine 中调用，
panic 会被恢复并记录，不影响其他订阅者。
*/
package execution
