// Package errdefs 定义核心错误分类
// 调用方使用 errors.Is 判断类别，错误信息中必须包含出错的
// 目标标识、端口或命令片段，方便定位问题
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration 配置缺失或非法 (服务器、模板、变量)
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound 请求的配置项不存在
	ErrNotFound = errors.New("not found")
	// ErrCapacity 连接池已达到配置上限
	ErrCapacity = errors.New("session pool at capacity")
	// ErrAuthentication 私钥被拒绝或无法解析
	ErrAuthentication = errors.New("authentication failed")
	// ErrTransport 网络失败或会话中途断开
	ErrTransport = errors.New("transport failure")
	// ErrExecution 通道级别的执行失败 (不包含超时，超时是正常结果)
	ErrExecution = errors.New("execution failed")
	// ErrTunnelBind 本地监听绑定失败 (如端口被占用)
	ErrTunnelBind = errors.New("tunnel bind failed")
	// ErrAuthorization 命令不在白名单内
	ErrAuthorization = errors.New("command not allowed")
)

// Wrap 把一个具体错误归入某个类别，保留原始错误链
func Wrap(kind error, err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if err == nil {
		return fmt.Errorf("%w: %s", kind, msg)
	}
	return fmt.Errorf("%w: %s: %w", kind, msg, err)
}

// New 创建一个带类别的错误
func New(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
