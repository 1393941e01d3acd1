// Package config 负责加载 pdfagent 的运行配置：YAML 文件、环境变量覆盖与默认值，
// 并在启动阶段校验模型凭据、存储与事件驱动等关键参数。
package config
