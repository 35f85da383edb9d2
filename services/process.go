package services

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"termhost/internal/logger"
)

/**
 * ProcessInstance 子进程实例
 * @property {string} title - 进程标题，用于日志显示
 * @property {string} command - 执行命令
 * @property {[]string} args - 命令参数
 * @property {string} workDir - 工作目录
 * @property {[]string} env - 附加环境变量(KEY=VALUE)
 */
type ProcessInstance struct {
	Title   string
	Command string
	Args    []string
	WorkDir string
	Env     []string

	process  *os.Process
	exitedCh chan error
	mutex    sync.Mutex
}

// NewProcessInstance 创建新的进程实例
func NewProcessInstance(title, command string, args []string) *ProcessInstance {
	return &ProcessInstance{
		Title:   title,
		Command: command,
		Args:    args,
	}
}

/**
 * StartProcess 启动进程
 * @returns {error} 返回错误信息
 * @description
 * - 启动子进程并继承当前环境，附加Env中的变量
 * - 启动协程等待进程退出，退出结果通过Exited()通道上报
 */
func (pi *ProcessInstance) StartProcess() error {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()

	if pi.process != nil {
		return nil
	}
	cmd := exec.Command(pi.Command, pi.Args...)
	if pi.WorkDir != "" {
		cmd.Dir = pi.WorkDir
	}
	cmd.Env = append(os.Environ(), pi.Env...)

	if err := cmd.Start(); err != nil {
		logger.Errorf("Failed to start process '%s', error: %v", pi.Title, err)
		return fmt.Errorf("start '%s' failed: %v", pi.Title, err)
	}
	pi.process = cmd.Process
	pi.exitedCh = make(chan error, 1)

	logger.Infof("Process '%s' started (PID: %d)", pi.Title, pi.process.Pid)

	go func(proc *os.Process, ch chan error) {
		state, err := proc.Wait()
		if err != nil {
			ch <- err
		} else if !state.Success() {
			ch <- fmt.Errorf("exited with %s", state.String())
		} else {
			ch <- nil
		}
		close(ch)
	}(pi.process, pi.exitedCh)
	return nil
}

// Exited 进程退出通知通道，进程退出时收到退出结果
func (pi *ProcessInstance) Exited() <-chan error {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()
	return pi.exitedCh
}

func (pi *ProcessInstance) Pid() int {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()

	if pi.process == nil {
		return 0
	}
	return pi.process.Pid
}

/**
 * StopProcess 强制终止进程
 * @description
 * - 成功、超时、失败路径都要调用，避免遗留进程占用端口
 * - 对已经退出的进程是幂等的
 */
func (pi *ProcessInstance) StopProcess() {
	pi.mutex.Lock()
	defer pi.mutex.Unlock()

	if pi.process == nil {
		return
	}
	pid := pi.process.Pid
	if err := pi.process.Kill(); err != nil {
		logger.Debugf("Kill process '%s' (PID: %d): %v", pi.Title, pid, err)
	}
	// 留一点时间让Wait协程收尸
	select {
	case <-pi.exitedCh:
	case <-time.After(3 * time.Second):
		logger.Warnf("Process '%s' (PID: %d) did not exit after kill", pi.Title, pid)
	}
	pi.process = nil
	logger.Infof("Process '%s' (PID: %d) stopped", pi.Title, pid)
}
