// bundlectl 是 bundle 流文件的命令行工具：查看、校验与格式转换。
package main

import (
	"os"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/log"
)

func main() {
	err := newRootCmd().Execute()
	_ = log.Sync()
	log.Cleanup()
	if err != nil {
		os.Exit(1)
	}
}
