package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// MaxFrameSize 单帧上限，完整快照可能较大
const MaxFrameSize = 64 * 1024

var ErrFrameTooLarge = errors.New("消息过大")

// WriteFrame 写入 4 字节大端长度前缀和数据体。timeout 为 0 时不设写超时
func WriteFrame(conn net.Conn, data []byte, timeout time.Duration) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w (%d bytes)", ErrFrameTooLarge, len(data))
	}
	if timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("发送数据失败: %w", err)
	}
	return nil
}

// ReadFrame 读取一帧。空帧返回长度为 0 的切片
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w (%d bytes)", ErrFrameTooLarge, n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("读取数据失败: %w", err)
	}
	return data, nil
}
