// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 FlowStudio 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout，
    自动注册 Cleanup 防止泄漏
  - 异步等待: WaitFor / WaitForChannel / AssertEventuallyTrue，
    超时轮询等待条件满足
  - 事件收集: Collector[T]，用于订阅回调的并发安全收集与等待

# 子包

  - testutil/fixtures: 工作流样例工厂，提供线性、分支、循环、
    错误处理等预置图，以及随机图生成器

# 使用示例

	ctx := testutil.TestContext(t)
	def := fixtures.LinearWorkflow()
	events := testutil.NewCollector[execution.Event]()
*/
package testutil
