// Package transport 可靠通道：TCP 或 KCP 上的长度前缀帧
package transport

import (
	"fmt"
	"net"
	"time"

	kcp "github.com/xtaci/kcp-go/v5"
)

const (
	ProtoTCP = "tcp"
	ProtoKCP = "kcp"
)

// Listen 监听可靠通道。接受的连接已调好低延迟参数
func Listen(proto, addr string) (net.Listener, error) {
	switch proto {
	case "", ProtoTCP:
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("监听 TCP 失败: %w", err)
		}
		return noDelayListener{l}, nil
	case ProtoKCP:
		l, err := kcp.ListenWithOptions(addr, nil, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("监听 KCP 失败: %w", err)
		}
		return kcpListener{l}, nil
	default:
		return nil, fmt.Errorf("不支持的协议: %s", proto)
	}
}

// Dial 连接可靠通道
func Dial(proto, addr string, timeout time.Duration) (net.Conn, error) {
	switch proto {
	case "", ProtoTCP:
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return nil, err
		}
		setNoDelay(conn)
		return conn, nil
	case ProtoKCP:
		sess, err := kcp.DialWithOptions(addr, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		tune(sess)
		return sess, nil
	default:
		return nil, fmt.Errorf("不支持的协议: %s", proto)
	}
}

type noDelayListener struct {
	net.Listener
}

func (l noDelayListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	setNoDelay(conn)
	return conn, nil
}

func setNoDelay(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}

type kcpListener struct {
	*kcp.Listener
}

func (l kcpListener) Accept() (net.Conn, error) {
	sess, err := l.AcceptKCP()
	if err != nil {
		return nil, err
	}
	tune(sess)
	return sess, nil
}

// tune nodelay、10ms 内部时钟、快速重传、关闭拥塞控制
func tune(s *kcp.UDPSession) {
	s.SetNoDelay(1, 10, 2, 1)
	s.SetWindowSize(256, 256)
	s.SetACKNoDelay(true)
}
