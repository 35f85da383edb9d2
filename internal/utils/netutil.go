package utils

import (
	"fmt"
	"net"
	"time"
)

// CheckPortConnectable 检查本机端口是否可连接（有进程在监听）
func CheckPortConnectable(port int) bool {
	timeout := time.Second
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", fmt.Sprintf("%d", port)), timeout)
	if err != nil {
		return false
	}
	if conn != nil {
		conn.Close()
		return true
	}
	return false
}
