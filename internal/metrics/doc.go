/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖会话生命周期、
回合执行与转录归档三个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制。所有指标按 namespace 隔离，便于 Grafana 等工具进行
可视化与告警。

# 主要能力

  - 会话指标：启动总数 Counter、活跃数 Gauge、终止总数
    （按 reason 分组）。
  - 回合指标：完成总数与耗时 Histogram，按 role 分组。
  - 归档指标：转录写入耗时与失败计数，按 backend 分组。
*/
package metrics
