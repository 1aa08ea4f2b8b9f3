// Package types 定义 rendezvous 的基础类型
//
// 本文件定义所有公共错误类型。
package types

import "errors"

// ============================================================================
//                              ID 相关错误
// ============================================================================

var (
	// ErrEmptyPeerID 空节点 ID
	ErrEmptyPeerID = errors.New("empty peer ID")

	// ErrInvalidPeerID 无效的节点 ID
	ErrInvalidPeerID = errors.New("invalid peer ID")

	// ErrEmptyProtocolID 空协议 ID
	ErrEmptyProtocolID = errors.New("empty protocol ID")
)

// ============================================================================
//                              连接相关错误
// ============================================================================

var (
	// ErrNotConnected 未连接
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionClosed 连接已关闭
	ErrConnectionClosed = errors.New("connection closed")

	// ErrConnectionTimeout 连接超时
	ErrConnectionTimeout = errors.New("connection timeout")
)

// ============================================================================
//                              流相关错误
// ============================================================================

var (
	// ErrStreamClosed 流已关闭
	ErrStreamClosed = errors.New("stream closed")

	// ErrStreamReset 流已重置
	ErrStreamReset = errors.New("stream reset")
)

// ============================================================================
//                              协议相关错误
// ============================================================================

var (
	// ErrProtocolNotSupported 协议不支持
	ErrProtocolNotSupported = errors.New("protocol not supported")

	// ErrProtocolNegotiationFailed 协议协商失败
	ErrProtocolNegotiationFailed = errors.New("protocol negotiation failed")
)

// ============================================================================
//                              发现相关错误
// ============================================================================

var (
	// ErrPeerNotFound 节点未找到
	ErrPeerNotFound = errors.New("peer not found")

	// ErrNoAddresses 无可用地址
	ErrNoAddresses = errors.New("no addresses available")

	// ErrDiscoveryTimeout 发现超时
	ErrDiscoveryTimeout = errors.New("discovery timeout")
)

// ============================================================================
//                              通用错误
// ============================================================================

var (
	// ErrNotReady 服务未就绪
	ErrNotReady = errors.New("service not ready")

	// ErrClosed 服务已关闭
	ErrClosed = errors.New("service closed")

	// ErrInvalidArgument 参数无效
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOperationCanceled 操作已取消
	ErrOperationCanceled = errors.New("operation canceled")

	// ErrTimeout 操作超时
	ErrTimeout = errors.New("operation timeout")
)
