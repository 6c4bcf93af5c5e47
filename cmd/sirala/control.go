package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/John-Robertt/sirala/internal/domain"
)

// controller 是 readControl 需要的最小控制面（*run.Controller 实现它）。
type controller interface {
	Pause() error
	Resume() error
	Stop() error
	Done() <-chan struct{}
}

// readControl 逐行读取 p / r / s 指令，直到输入结束或作业进入终态。
func readControl(r io.Reader, c controller, w io.Writer, log *slog.Logger) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case <-c.Done():
			return
		default:
		}

		var err error
		switch cmd := strings.ToLower(strings.TrimSpace(sc.Text())); cmd {
		case "":
			continue
		case "p", "pause":
			err = c.Pause()
		case "r", "resume":
			err = c.Resume()
		case "s", "stop":
			err = c.Stop()
		default:
			if w != nil {
				fmt.Fprintf(w, "未知指令 %q（p 暂停，r 恢复，s 停止）\n", cmd)
			}
			continue
		}
		if err != nil {
			if domain.Code(err) == domain.ErrCodeInvalidState && w != nil {
				fmt.Fprintf(w, "忽略：%v\n", err)
				continue
			}
			log.Warn("控制指令失败", "err", err)
		}
	}
}
