// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package validation 对工作流定义做结构与配置校验。

Validate 是纯函数：同一定义两次校验得到完全相同的 Result，且从不修改输入。
错误使定义非法；警告只作提示，不影响 IsValid。

# 检查顺序

  - 入口：恰好一个 start 节点（MISSING_START / AMBIGUOUS_START）
  - 边：重复 id、悬空端点、重复路由
  - 可达性与终止路径（仅当存在 start 节点时）
  - 环：每条 DFS 回边报告一次；全部由有界 loop 组成的环为 BOUNDED_LOOP 警告，
    否则为 CYCLE_DETECTED 错误
  - 节点配置：按节点类型分派，含条件分支覆盖与 error 边目标
  - 变量：表达式与 ${var} 引用必须已声明或为内置标识符
*/
package validation
