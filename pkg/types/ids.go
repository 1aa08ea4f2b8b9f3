// Package types 定义 rendezvous 的基础类型
//
// 本文件定义所有 ID 类型，是整个系统的核心标识类型。
// 这些类型是纯值类型，不依赖任何其他内部包。
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ============================================================================
//                              PeerID / NodeID - 节点标识
// ============================================================================

// PeerID 节点唯一标识符
//
// PeerID 由公钥派生，确保全网唯一性和可验证性。
// 外部表示格式为 Base58 编码（用户可读、可分享）。
//
// 示例：
//
//	id, err := types.ParsePeerID("12D3KooWLYGJ...")
//	fmt.Println(id.ShortString()) // "12D3KooW..." 加上 ID 的末 3 个字符
type PeerID string

// NodeID 是 PeerID 的别名
type NodeID = PeerID

// EmptyPeerID 空节点ID
const EmptyPeerID PeerID = ""

// String 返回 PeerID 的字符串表示
func (id PeerID) String() string {
	return string(id)
}

// ShortString 返回 PeerID 的短字符串表示
//
// 格式：前 8 字符 + "..." + 后 3 字符，用于日志中的简短标识。
func (id PeerID) ShortString() string {
	s := string(id)
	if len(s) <= 14 {
		return s
	}
	return s[:8] + "..." + s[len(s)-3:]
}

// Bytes 返回 PeerID 的字节切片
func (id PeerID) Bytes() []byte {
	return []byte(id)
}

// IsEmpty 检查 PeerID 是否为空
func (id PeerID) IsEmpty() bool {
	return id == EmptyPeerID
}

// Validate 验证 PeerID 格式
//
// 验证流程：
//  1. 检查是否为空
//  2. Base58 解码验证
//  3. 长度验证（支持原生格式和 Multihash 格式）
func (id PeerID) Validate() error {
	if id.IsEmpty() {
		return ErrEmptyPeerID
	}

	decoded, err := Base58Decode(string(id))
	if err != nil {
		return fmt.Errorf("invalid base58: %w", err)
	}

	// 原生格式：32 字节 SHA256 哈希
	if len(decoded) == 32 {
		return nil
	}

	// Multihash 格式: [类型码(1字节)][长度(1字节)][数据]
	if len(decoded) >= 2 {
		hashLen := int(decoded[1])
		if len(decoded) == 2+hashLen {
			return nil
		}
	}

	return fmt.Errorf("invalid peer id: length %d (expected 32 for SHA256 or valid multihash)", len(decoded))
}

// Equal 比较两个 PeerID 是否相等
func (id PeerID) Equal(other PeerID) bool {
	return id == other
}

// Hash 返回 PeerID 的 SHA256 哈希值（32字节）
func (id PeerID) Hash() [32]byte {
	return sha256.Sum256([]byte(id))
}

// ErrPeerIDNoEmbeddedKey PeerID 不包含内嵌公钥
var ErrPeerIDNoEmbeddedKey = errors.New("peer ID does not contain embedded public key")

// ExtractPublicKey 从 PeerID 中提取内嵌的公钥
//
// 仅适用于 identity multihash 格式的 PeerID（内嵌完整公钥）。
// 对于原生格式和 SHA256 派生的 PeerID，返回 ErrPeerIDNoEmbeddedKey。
func (id PeerID) ExtractPublicKey() ([]byte, error) {
	if id.IsEmpty() {
		return nil, ErrEmptyPeerID
	}

	decoded, err := Base58Decode(string(id))
	if err != nil {
		return nil, fmt.Errorf("invalid base58: %w", err)
	}

	if len(decoded) == 32 {
		return nil, ErrPeerIDNoEmbeddedKey
	}

	if len(decoded) < 2 {
		return nil, ErrInvalidPeerID
	}

	hashType := decoded[0]
	hashLen := int(decoded[1])

	if hashType == 0x00 {
		if len(decoded) < 2+hashLen {
			return nil, fmt.Errorf("invalid multihash: length mismatch")
		}
		pubKey := make([]byte, hashLen)
		copy(pubKey, decoded[2:2+hashLen])
		return pubKey, nil
	}

	return nil, ErrPeerIDNoEmbeddedKey
}

// MatchesPublicKey 验证 PeerID 是否与给定公钥匹配
func (id PeerID) MatchesPublicKey(pubKey []byte) bool {
	if id.IsEmpty() || len(pubKey) == 0 {
		return false
	}

	extractedPubKey, err := id.ExtractPublicKey()
	if err == nil {
		if len(extractedPubKey) != len(pubKey) {
			return false
		}
		for i := 0; i < len(pubKey); i++ {
			if extractedPubKey[i] != pubKey[i] {
				return false
			}
		}
		return true
	}

	derivedID, err := PeerIDFromPublicKey(pubKey)
	if err != nil {
		return false
	}

	return id == derivedID
}

// ParsePeerID 从字符串解析 PeerID
func ParsePeerID(s string) (PeerID, error) {
	if s == "" {
		return EmptyPeerID, ErrEmptyPeerID
	}
	id := PeerID(s)
	if err := id.Validate(); err != nil {
		return EmptyPeerID, err
	}
	return id, nil
}

// PeerIDFromBytes 从字节切片创建 PeerID
func PeerIDFromBytes(b []byte) (PeerID, error) {
	if len(b) == 0 {
		return EmptyPeerID, ErrEmptyPeerID
	}
	return PeerID(b), nil
}

// PeerIDFromPublicKey 从公钥派生 PeerID
//
// 派生算法：Base58(SHA256(pubKey))
func PeerIDFromPublicKey(pubKey []byte) (PeerID, error) {
	if len(pubKey) == 0 {
		return EmptyPeerID, errors.New("empty public key")
	}
	hash := sha256.Sum256(pubKey)
	encoded := Base58Encode(hash[:])
	return PeerID(encoded), nil
}

// ============================================================================
//                              StreamID - 流标识
// ============================================================================

// StreamID 流唯一标识符
type StreamID uint64

// String 返回 StreamID 的字符串表示
func (id StreamID) String() string {
	return hex.EncodeToString([]byte{
		byte(id >> 56), byte(id >> 48), byte(id >> 40), byte(id >> 32),
		byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id),
	})
}

// ============================================================================
//                              辅助类型
// ============================================================================

// PeerIDSlice 用于排序的 PeerID 切片
type PeerIDSlice []PeerID

func (s PeerIDSlice) Len() int           { return len(s) }
func (s PeerIDSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s PeerIDSlice) Less(i, j int) bool { return string(s[i]) < string(s[j]) }
