// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供可视化工作流的图模型。

# 概述

workflow 包定义了编辑器中被创作、校验、分析和执行的工作流图。
节点与边以两个有序切片存放，并通过字符串 id 寻址（arena + id 查找），
所有遍历都经由 id 查找完成，而非节点间的直接指针。

# 核心类型

  - Definition  — 工作流定义（节点、边、元数据、变量、设置）
  - Node / Edge — 类型化节点与可带 handle / condition 的有向边
  - NodeConfig  — 按节点类型区分的封闭配置联合体
    （Start / Model / Tool / Memory / Retrieval / Conditional /
    Loop / Variable / ErrorHandler / Delay）
  - Builder     — Fluent API 构建工作流定义

# 主要能力

  - 全函数式变更：AddNode / RemoveNode（级联删除边）/ AddEdge / RemoveEdge /
    UpdateNodeConfig / MoveNode / RenameVariable 等，未知 id 为 no-op
  - 深拷贝 Clone 与深比较 Equal，供编辑历史快照使用
  - 序列化：JSON / YAML 导入导出，按节点类型分派配置并记录未知字段

# 子包

  - workflow/expr       — 条件表达式求值与 ${var} 插值
  - workflow/validation — 结构校验
  - workflow/analytics  — 复杂度、路径、瓶颈与优化建议分析
  - workflow/history    — 撤销 / 重做与复制 / 粘贴
  - workflow/execution  — 执行生命周期协调器
  - workflow/runner     — 本地与远程执行器
  - workflow/store      — 工作流持久化
*/
package workflow
