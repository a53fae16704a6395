// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package analytics 为工作流定义计算只读的建议性指标。

Analyze 不会因非法图而 panic：没有唯一 start 节点时执行路径为空，
悬空边在所有统计中被忽略。

# 指标

  - 复杂度：每个节点 1 分，conditional / loop 额外 2 分，
    超出生成树（节点数 - 1）的每条边 1 分；Classify 仅用于展示分级
  - 节点类型分布：默认只含出现过的类型，WithZeroCounts 列出全部类型
  - 执行路径：从 start 出发的全部简单路径，路径内局部 visited 集合，
    WithMaxPaths 限制数量并设置 PathsTruncated
  - 瓶颈：入度 >= 3、tool / retrieval 未设超时、环内的 model 节点
  - 优化建议：由瓶颈与结构启发式派生，仅为提示文本
*/
package analytics
