// Package types 定义 rendezvous 公共类型
//
// 本文件重导出 multiaddr 包的类型和函数。
package types

import (
	"github.com/dep2p/rendezvous/pkg/lib/multiaddr"
)

// ============================================================================
//                              Multiaddr - 多地址
// ============================================================================

// Multiaddr 表示多地址
//
// Multiaddr 是一种自描述的网络地址格式。
// 例如：/ip4/127.0.0.1/tcp/4001/p2p/12D3KooW...
type Multiaddr = multiaddr.Multiaddr

// NewMultiaddr 从字符串创建多地址
var NewMultiaddr = multiaddr.NewMultiaddr

// ParseMultiaddr 从字符串解析多地址（别名）
var ParseMultiaddr = multiaddr.NewMultiaddr

// NewMultiaddrBytes 从字节创建多地址
var NewMultiaddrBytes = multiaddr.NewMultiaddrBytes

// UniqueMultiaddrs 去重多地址
var UniqueMultiaddrs = multiaddr.UniqueAddrs

// GetPeerID 从多地址中提取 PeerID（/p2p/ 组件）
func GetPeerID(m Multiaddr) (PeerID, error) {
	id, err := multiaddr.GetPeerID(m)
	return PeerID(id), err
}

// WithPeerID 为多地址添加或替换 PeerID
func WithPeerID(m Multiaddr, peerID PeerID) (Multiaddr, error) {
	return multiaddr.WithPeerID(m, string(peerID))
}

// WithoutPeerID 移除多地址中的 PeerID
var WithoutPeerID = multiaddr.WithoutPeerID

// P2PMultiaddr 创建 /p2p/<peerID> 多地址
func P2PMultiaddr(peerID PeerID) Multiaddr {
	ma, _ := NewMultiaddr("/p2p/" + string(peerID))
	return ma
}

// IsEmpty 检查多地址是否为空
func IsEmpty(m Multiaddr) bool {
	return m == nil || len(m.Bytes()) == 0
}

// 协议代码常量（重导出）
const (
	ProtocolP2P = multiaddr.P_P2P
	ProtocolTCP = multiaddr.P_TCP
	ProtocolIP4 = multiaddr.P_IP4
	ProtocolIP6 = multiaddr.P_IP6
)
