// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package history 为工作流编辑器提供撤销 / 重做与复制 / 粘贴。

History 以值快照（深拷贝）保存编辑前的定义，而不是回放逆操作：

  - Commit 先把当前快照压入 undo 栈，再在副本上执行变更并清空 redo 栈；
    没有产生任何变化的变更被吸收，不入栈
  - Undo / Redo 在两个栈之间移动快照
  - undo 栈深度受 WithLimit 限制，超出时从栈底淘汰最旧的快照
  - Copy 只保留两端都在选区内的边；Paste 为节点和边重新生成 uuid、
    按偏移量移动位置，并作为一次可撤销的 Commit
*/
package history
